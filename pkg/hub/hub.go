// Package hub fans dashboard updates out to websocket viewers.
//
// One goroutine (Run) owns the client set. Viewers that fall behind by a
// full send buffer are dropped rather than slowing everyone else down.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

const queueSize = 256

// Hub broadcasts messages to every registered client.
type Hub struct {
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan Message

	mu      sync.RWMutex // guards clients for ClientCount; Run is the only writer
	clients map[*Client]struct{}

	dropped atomic.Uint64

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a hub. name tags its log lines.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "hub", "hub", name),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, queueSize),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Stop. Call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				h.remove(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("viewer joined", "viewers", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("viewer left", "viewers", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.remove(c)
					h.logger.Warn("dropped slow viewer")
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove closes c's queue, which makes its write loop send a close frame.
// h.mu must be held.
func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// Stop makes Run disconnect every client and return. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped and counted.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		if h.dropped.Add(1) == 1 {
			h.logger.Warn("broadcast queue full, dropping messages")
		}
	}
}

// BroadcastJSON encodes v and broadcasts it as a text frame.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Data: data})
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded because the queue
// was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Package bridge connects media runtimes to voice agents over WebSocket.
//
// Each runtime connection on /ws/runtime becomes a Session with its own
// orchestrator. The runtime sends transcripts, frames, interruptions and
// finished function calls; the session answers with speech and turn
// notifications, all as protocol messages.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-voiceagent/pkg/agent"
	"github.com/teslashibe/go-voiceagent/pkg/history"
	"github.com/teslashibe/go-voiceagent/pkg/inference"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/tts"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// Playback rates a runtime may request. Zero keeps the voice's native rate.
const (
	minSampleRate = 8000
	maxSampleRate = 48000
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithAgentOptions adds options for every session's orchestrator.
func WithAgentOptions(opts ...agent.Option) Option {
	return func(b *Bridge) { b.agentOpts = append(b.agentOpts, opts...) }
}

// WithAdapterOptions adds options for every session's speech adapter.
func WithAdapterOptions(opts ...tts.AdapterOption) Option {
	return func(b *Bridge) { b.adapterOpts = append(b.adapterOpts, opts...) }
}

// Bridge manages runtime sessions.
type Bridge struct {
	persona     voice.Config
	llm         inference.Provider
	speech      tts.Provider
	logger      *slog.Logger
	agentOpts   []agent.Option
	adapterOpts []tts.AdapterOption

	mu       sync.RWMutex
	sessions map[string]*Session

	// Callbacks
	cbMu       sync.RWMutex
	onSession  func(info SessionInfo, connected bool)
	onTurn     func(sessionID string, turn history.Turn)
	onState    func(sessionID string, state agent.State)
	onMetrics  func(sessionID string, m voice.Metrics)
	onSentence func(sessionID, sentence string)

	// Stats
	messagesReceived    atomic.Uint64
	messagesSent        atomic.Uint64
	framesReceived      atomic.Uint64
	transcriptsReceived atomic.Uint64
	audioBytesSent      atomic.Uint64
}

// New creates a bridge serving persona with the given collaborators.
func New(persona voice.Config, llm inference.Provider, speech tts.Provider, opts ...Option) *Bridge {
	b := &Bridge{
		persona:  persona,
		llm:      llm,
		speech:   speech,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge")
	return b
}

// OnSession sets the callback for sessions connecting and disconnecting.
func (b *Bridge) OnSession(fn func(info SessionInfo, connected bool)) {
	b.cbMu.Lock()
	b.onSession = fn
	b.cbMu.Unlock()
}

// OnTurn sets the callback for turns appended in any session.
func (b *Bridge) OnTurn(fn func(sessionID string, turn history.Turn)) {
	b.cbMu.Lock()
	b.onTurn = fn
	b.cbMu.Unlock()
}

// OnState sets the callback for orchestrator state changes.
func (b *Bridge) OnState(fn func(sessionID string, state agent.State)) {
	b.cbMu.Lock()
	b.onState = fn
	b.cbMu.Unlock()
}

// OnMetrics sets the callback fired when an answer's latency is known.
func (b *Bridge) OnMetrics(fn func(sessionID string, m voice.Metrics)) {
	b.cbMu.Lock()
	b.onMetrics = fn
	b.cbMu.Unlock()
}

// OnSentence sets the callback fired as each answer sentence is sent for synthesis.
func (b *Bridge) OnSentence(fn func(sessionID, sentence string)) {
	b.cbMu.Lock()
	b.onSentence = fn
	b.cbMu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (b *Bridge) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/runtime", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/runtime", websocket.New(b.handleRuntime))
	app.Get("/ws/runtime/:room", websocket.New(b.handleRuntime))
}

// handleRuntime serves one runtime connection for its whole lifetime.
func (b *Bridge) handleRuntime(c *websocket.Conn) {
	s := &Session{
		ID:        uuid.NewString(),
		Connected: time.Now(),
		conn:      c,
		bridge:    b,
		room:      c.Params("room"),
		lastSeen:  time.Now(),
	}
	logger := b.logger.With("session", s.ID)

	orch, err := b.newOrchestrator(s, logger)
	if err != nil {
		logger.Error("orchestrator setup failed", "error", err)
		if msg, merr := protocol.NewErrorMessage(protocol.ErrorInternal, err.Error()); merr == nil {
			s.Send(msg)
		}
		return
	}
	s.orch = orch

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.Run(ctx)
	}()

	b.mu.Lock()
	b.sessions[s.ID] = s
	count := len(b.sessions)
	b.mu.Unlock()
	logger.Info("runtime connected", "room", s.Room(), "sessions", count)
	b.emitSession(s, true)

	defer func() {
		cancel()
		orch.Close()
		wg.Wait()

		b.emitSession(s, false)
		b.mu.Lock()
		delete(b.sessions, s.ID)
		count := len(b.sessions)
		b.mu.Unlock()
		logger.Info("runtime disconnected", "sessions", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("read ended", "error", err)
			return
		}
		s.touch()
		b.messagesReceived.Add(1)
		b.handleMessage(ctx, s, &wg, data, logger)
	}
}

func (b *Bridge) newOrchestrator(s *Session, logger *slog.Logger) (*agent.Orchestrator, error) {
	metrics := voice.NewMetricsCollector()
	metrics.OnUpdate(func(m voice.Metrics) {
		b.cbMu.RLock()
		fn := b.onMetrics
		b.cbMu.RUnlock()
		if fn != nil {
			fn(s.ID, m)
		}
	})

	adapterOpts := append([]tts.AdapterOption{tts.WithAdapterLogger(logger)}, b.adapterOpts...)
	speaker := tts.NewStreamAdapter(b.speech, s, adapterOpts...)
	speaker.OnSentence(func(sentence string) {
		b.cbMu.RLock()
		fn := b.onSentence
		b.cbMu.RUnlock()
		if fn != nil {
			fn(s.ID, sentence)
		}
	})

	opts := append([]agent.Option{agent.WithLogger(logger), agent.WithMetrics(metrics)}, b.agentOpts...)
	orch, err := agent.New(b.persona, b.llm, speaker, opts...)
	if err != nil {
		return nil, err
	}

	orch.OnTurn(func(t history.Turn) {
		msg, err := protocol.NewTurnMessage(protocol.TurnData{
			ID:          t.ID,
			Role:        string(t.Role),
			Text:        t.Text,
			HasImage:    t.HasImage(),
			Interrupted: t.Interrupted,
		})
		if err == nil {
			s.Send(msg)
		}

		b.cbMu.RLock()
		fn := b.onTurn
		b.cbMu.RUnlock()
		if fn != nil {
			fn(s.ID, t)
		}
	})
	orch.OnStateChange(func(state agent.State) {
		b.cbMu.RLock()
		fn := b.onState
		b.cbMu.RUnlock()
		if fn != nil {
			fn(s.ID, state)
		}
	})
	orch.OnError(func(err error) {
		b.sendError(s, errorKind(err), err.Error())
	})
	return orch, nil
}

// handleMessage processes an incoming message from a runtime
func (b *Bridge) handleMessage(ctx context.Context, s *Session, wg *sync.WaitGroup, data []byte, logger *slog.Logger) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		logger.Warn("parse error", "error", err)
		b.sendError(s, protocol.ErrorBadMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeConnect:
		conn, err := msg.GetConnectData()
		if err != nil {
			b.sendError(s, protocol.ErrorBadMessage, err.Error())
			return
		}
		if conn.SampleRate != 0 && (conn.SampleRate < minSampleRate || conn.SampleRate > maxSampleRate) {
			b.sendError(s, protocol.ErrorBadMessage, fmt.Sprintf("sample rate %d out of range", conn.SampleRate))
			return
		}
		if conn.Room != "" {
			s.setRoom(conn.Room)
		}
		s.setSampleRate(conn.SampleRate)
		logger.Info("runtime joined room", "room", s.Room(), "participant", conn.Participant, "sample_rate", conn.SampleRate)
		if b.persona.Greeting != "" && s.greeted.CompareAndSwap(false, true) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.orch.Say(ctx, b.persona.Greeting, true); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, agent.ErrClosed) {
					b.sendError(s, errorKind(err), err.Error())
				}
			}()
		}

	case protocol.TypeTranscript:
		tr, err := msg.GetTranscriptData()
		if err != nil {
			b.sendError(s, protocol.ErrorBadMessage, err.Error())
			return
		}
		text := strings.TrimSpace(tr.Text)
		if !tr.Final || text == "" {
			return
		}
		b.transcriptsReceived.Add(1)
		s.orch.Deliver(agent.UtteranceEvent{Text: text, AttachImage: tr.AttachImage})

	case protocol.TypeFrame:
		b.framesReceived.Add(1)
		frame, err := msg.GetFrameData()
		if err != nil {
			b.sendError(s, protocol.ErrorBadMessage, err.Error())
			return
		}
		img, err := decodeFrame(frame)
		if err != nil {
			b.sendError(s, protocol.ErrorBadMessage, err.Error())
			return
		}
		s.orch.Deliver(agent.FrameEvent{Frame: img})

	case protocol.TypeInterrupt:
		s.orch.Deliver(agent.InterruptEvent{})

	case protocol.TypeFunctionCallsFinished:
		done, err := msg.GetFunctionCallsFinishedData()
		if err != nil {
			b.sendError(s, protocol.ErrorBadMessage, err.Error())
			return
		}
		calls := make([]agent.CalledFunction, len(done.Calls))
		for i, c := range done.Calls {
			calls[i] = agent.CalledFunction{Name: c.Name, Arguments: c.Arguments}
		}
		s.orch.Deliver(agent.FunctionCallsFinishedEvent{Calls: calls})

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		if pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli()); err == nil {
			s.Send(pong)
		}

	default:
		logger.Warn("unknown message type", "type", msg.Type)
		b.sendError(s, protocol.ErrorBadMessage, "unknown message type: "+string(msg.Type))
	}
}

func decodeFrame(f *protocol.FrameData) (*history.Image, error) {
	data, err := f.Decode()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("bridge: empty frame")
	}
	return &history.Image{
		Data:       data,
		MIMEType:   f.MIMEType(),
		Width:      f.Width,
		Height:     f.Height,
		FrameID:    f.FrameID,
		CapturedAt: time.Now(),
	}, nil
}

func (b *Bridge) sendError(s *Session, kind, message string) {
	msg, err := protocol.NewErrorMessage(kind, message)
	if err != nil {
		return
	}
	if err := s.Send(msg); err != nil {
		b.logger.Debug("error not delivered", "session", s.ID, "error", err)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, agent.ErrModelUnavailable):
		return protocol.ErrorModelUnavailable
	case errors.Is(err, agent.ErrSynthesisFailure):
		return protocol.ErrorSynthesisFailure
	default:
		return protocol.ErrorInternal
	}
}

func (b *Bridge) emitSession(s *Session, connected bool) {
	b.cbMu.RLock()
	fn := b.onSession
	b.cbMu.RUnlock()
	if fn != nil {
		fn(s.Info(), connected)
	}
}

// GetSession returns a session by ID
func (b *Bridge) GetSession(id string) *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[id]
}

// SessionCount returns the number of connected runtimes
func (b *Bridge) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// SessionInfos returns info about all connected sessions
func (b *Bridge) SessionInfos() []SessionInfo {
	b.mu.RLock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Stats contains bridge statistics
type Stats struct {
	SessionCount        int    `json:"session_count"`
	MessagesReceived    uint64 `json:"messages_received"`
	MessagesSent        uint64 `json:"messages_sent"`
	FramesReceived      uint64 `json:"frames_received"`
	TranscriptsReceived uint64 `json:"transcripts_received"`
	AudioBytesSent      uint64 `json:"audio_bytes_sent"`
}

// GetStats returns bridge statistics
func (b *Bridge) GetStats() Stats {
	return Stats{
		SessionCount:        b.SessionCount(),
		MessagesReceived:    b.messagesReceived.Load(),
		MessagesSent:        b.messagesSent.Load(),
		FramesReceived:      b.framesReceived.Load(),
		TranscriptsReceived: b.transcriptsReceived.Load(),
		AudioBytesSent:      b.audioBytesSent.Load(),
	}
}

// TurnInfo is a history turn as served by the API. Image bytes are left out.
type TurnInfo struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Text        string    `json:"text"`
	HasImage    bool      `json:"has_image,omitempty"`
	ToolCalls   []string  `json:"tool_calls,omitempty"`
	Interrupted bool      `json:"interrupted,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func turnInfos(turns []history.Turn) []TurnInfo {
	out := make([]TurnInfo, len(turns))
	for i, t := range turns {
		var calls []string
		for _, c := range t.ToolCalls {
			calls = append(calls, c.Name)
		}
		out[i] = TurnInfo{
			ID:          t.ID,
			Role:        string(t.Role),
			Text:        t.Text,
			HasImage:    t.HasImage(),
			ToolCalls:   calls,
			Interrupted: t.Interrupted,
			CreatedAt:   t.CreatedAt,
		}
	}
	return out
}

// RegisterAPIRoutes registers API routes for session inspection
func (b *Bridge) RegisterAPIRoutes(api fiber.Router) {
	sessions := api.Group("/sessions")

	// List connected sessions
	sessions.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": b.SessionInfos(),
			"count":    b.SessionCount(),
			"persona":  b.persona.Name,
		})
	})

	// Get bridge stats
	sessions.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(b.GetStats())
	})

	// Get a session's chat history
	sessions.Get("/:id/history", func(c *fiber.Ctx) error {
		s := b.GetSession(c.Params("id"))
		if s == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
		}
		return c.JSON(fiber.Map{
			"id":    s.ID,
			"turns": turnInfos(s.orch.History()),
		})
	})
}

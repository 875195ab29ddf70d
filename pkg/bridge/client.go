package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

// ErrClientClosed is returned after Close.
var ErrClientClosed = errors.New("bridge: client closed")

// Client speaks the runtime side of the protocol. Simulators and tests use
// it in place of a real media runtime.
type Client struct {
	conn *websocket.Conn

	wmu    sync.Mutex
	closed bool
	frames uint64
}

// Dial connects to a bridge endpoint such as ws://localhost:8080/ws/runtime.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Send writes a message.
func (c *Client) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Connect announces the room and triggers the greeting. A non-zero
// sampleRate asks for PCM audio at that rate.
func (c *Client) Connect(room, participant string, sampleRate int) error {
	return c.send(protocol.NewConnectMessage(room, participant, sampleRate))
}

// Transcript sends a transcription result.
func (c *Client) Transcript(text string, final bool) error {
	return c.send(protocol.NewTranscriptMessage(text, final))
}

// Frame sends a video frame. format is "jpeg" or "png".
func (c *Client) Frame(width, height int, format string, data []byte) error {
	c.wmu.Lock()
	c.frames++
	id := c.frames
	c.wmu.Unlock()
	return c.send(protocol.NewFrameMessage(width, height, format, data, id))
}

// Interrupt reports that the user started talking.
func (c *Client) Interrupt() error {
	return c.send(protocol.NewInterruptMessage())
}

// FunctionCallsFinished reports completed function calls.
func (c *Client) FunctionCallsFinished(calls ...protocol.FunctionCall) error {
	return c.send(protocol.NewFunctionCallsFinishedMessage(calls...))
}

// Ping sends a health check.
func (c *Client) Ping(id string) error {
	return c.send(protocol.NewPingMessage(id))
}

// Receive blocks for the next message. A zero timeout waits forever.
func (c *Client) Receive(timeout time.Duration) (*protocol.Message, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.ParseMessage(data)
}

// ReceiveUntil reads messages until one of type t arrives and returns every
// message read, the matching one last.
func (c *Client) ReceiveUntil(t protocol.MessageType, timeout time.Duration) ([]*protocol.Message, error) {
	deadline := time.Now().Add(timeout)
	var msgs []*protocol.Message
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return msgs, context.DeadlineExceeded
		}
		msg, err := c.Receive(remaining)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
		if msg.Type == t {
			return msgs, nil
		}
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	if c.closed {
		c.wmu.Unlock()
		return nil
	}
	c.closed = true
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(msg *protocol.Message, err error) error {
	if err != nil {
		return err
	}
	return c.Send(msg)
}

package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-voiceagent/pkg/agent"
	"github.com/teslashibe/go-voiceagent/pkg/audioio"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/tts"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// Session is one connected runtime. It owns an orchestrator and is the
// AudioSink its speech is written to.
type Session struct {
	ID        string
	Connected time.Time

	conn   *websocket.Conn
	bridge *Bridge
	orch   *agent.Orchestrator

	greeted atomic.Bool

	mu         sync.Mutex
	room       string
	sampleRate int
	lastSeen   time.Time
	wmu        sync.Mutex // serializes writes
}

// Send writes a message to the runtime.
func (s *Session) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.bridge.messagesSent.Add(1)
	return nil
}

// Room returns the room announced by the runtime.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// LastSeen returns when the runtime last sent a message.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Orchestrator returns the session's orchestrator.
func (s *Session) Orchestrator() *agent.Orchestrator {
	return s.orch
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) setRoom(room string) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

func (s *Session) setSampleRate(rate int) {
	s.mu.Lock()
	s.sampleRate = rate
	s.mu.Unlock()
}

// SampleRate returns the playback rate the runtime asked for, or 0.
func (s *Session) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

// BeginSpeech implements tts.AudioSink.
func (s *Session) BeginSpeech(allowInterruptions bool) error {
	msg, err := protocol.NewSpeechStartMessage(allowInterruptions)
	if err != nil {
		return err
	}
	return s.Send(msg)
}

// WriteAudio implements tts.AudioSink. PCM is resampled to the rate the
// runtime asked for on connect.
func (s *Session) WriteAudio(chunk []byte, format tts.AudioFormat) error {
	encoding, rate := string(format.Encoding), format.SampleRate
	if want := s.SampleRate(); want > 0 && want != rate && format.BitDepth == 16 {
		chunk = audioio.ResampleBytes(chunk, rate, want)
		encoding, rate = fmt.Sprintf("pcm_%d", want), want
	}
	msg, err := protocol.NewAudioMessage(chunk, encoding, rate)
	if err != nil {
		return err
	}
	if err := s.Send(msg); err != nil {
		return err
	}
	s.bridge.audioBytesSent.Add(uint64(len(chunk)))
	return nil
}

// EndSpeech implements tts.AudioSink.
func (s *Session) EndSpeech(interrupted bool) error {
	msg, err := protocol.NewSpeechEndMessage(interrupted)
	if err != nil {
		return err
	}
	return s.Send(msg)
}

// Info returns a snapshot for the API.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Room:      s.Room(),
		Connected: s.Connected,
		LastSeen:  s.LastSeen(),
		State:     s.orch.State().String(),
		Turns:     len(s.orch.History()),
		Latency:   s.orch.Metrics().Summary(),
	}
}

// SessionInfo contains info about a connected runtime session
type SessionInfo struct {
	ID        string        `json:"id"`
	Room      string        `json:"room,omitempty"`
	Connected time.Time     `json:"connected"`
	LastSeen  time.Time     `json:"last_seen"`
	State     string        `json:"state"`
	Turns     int           `json:"turns"`
	Latency   voice.Summary `json:"latency"`
}

var _ tts.AudioSink = (*Session)(nil)

// Package protocol defines the WebSocket messages exchanged between the media
// runtime and the voice agent.
//
// Every message is a JSON envelope {type, ts, data}. The runtime owns rooms,
// audio transport, speech detection and transcription; it sends transcripts,
// frames, interruptions and finished function calls. The agent answers with
// synthesized speech and turn notifications.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoType is returned by ParseMessage for an envelope without a type.
var ErrNoType = errors.New("protocol: message has no type")

type MessageType string

// Runtime to agent.
const (
	TypeConnect               MessageType = "connect"
	TypeTranscript            MessageType = "transcript"
	TypeFrame                 MessageType = "frame"
	TypeInterrupt             MessageType = "interrupt" // user spoke over the agent
	TypeFunctionCallsFinished MessageType = "function_calls_finished"
)

// Agent to runtime.
const (
	TypeSpeechStart MessageType = "speech_start"
	TypeAudio       MessageType = "audio"
	TypeSpeechEnd   MessageType = "speech_end"
	TypeTurn        MessageType = "turn" // a turn was appended to history
	TypeError       MessageType = "error"
)

// Either direction.
const (
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the envelope. Data is decoded lazily with ParseData once Type
// is known.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // unix ms, set by the sender
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage stamps the envelope with the current time. A nil data leaves
// the data field out.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	msg := &Message{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msgType, err)
	}
	msg.Data = raw
	return msg, nil
}

// ParseData decodes Data into v. A message without data leaves v untouched.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

func (m *Message) Bytes() ([]byte, error) { return json.Marshal(m) }

func ParseMessage(data []byte) (*Message, error) {
	msg := new(Message)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrNoType
	}
	return msg, nil
}

// ConnectData announces the session's room and participant.
type ConnectData struct {
	Room        string `json:"room"`
	Participant string `json:"participant,omitempty"`

	// SampleRate is the PCM rate the runtime plays. Zero keeps the
	// synthesizer's native rate.
	SampleRate int `json:"sample_rate,omitempty"`
}

// TranscriptData is a transcription result. Only final results start an
// answer.
type TranscriptData struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`

	// AttachImage asks the agent to include the latest frame.
	AttachImage bool `json:"attach_image,omitempty"`
}

// FrameData is one camera frame. Only the latest frame per session is kept.
type FrameData struct {
	Format  string `json:"format"` // jpeg or png
	Data    string `json:"data"`   // base64
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	FrameID uint64 `json:"frame_id,omitempty"`
}

// FunctionCall is one finished function call.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// FunctionCallsFinishedData lists function calls the runtime completed.
type FunctionCallsFinishedData struct {
	Calls []FunctionCall `json:"calls"`
}

// SpeechStartData opens an utterance.
type SpeechStartData struct {
	AllowInterruptions bool `json:"allow_interruptions"`
}

// AudioData is one chunk of an utterance, between speech_start and
// speech_end.
type AudioData struct {
	Format     string `json:"format"` // pcm_<rate>, mp3, opus or wav
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"` // base64
}

// SpeechEndData closes an utterance.
type SpeechEndData struct {
	Interrupted bool `json:"interrupted"`
}

// TurnData reports a turn appended to history.
type TurnData struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	HasImage    bool   `json:"has_image,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// Error kinds sent to the runtime.
const (
	ErrorModelUnavailable = "model_unavailable"
	ErrorSynthesisFailure = "synthesis_failure"
	ErrorBadMessage       = "bad_message"
	ErrorInternal         = "internal"
)

// ErrorData reports a failure.
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData echoes a ping. LatencyMs is measured against the ping's own
// timestamp, so it includes clock skew between the two hosts.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

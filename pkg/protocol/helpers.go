package protocol

import (
	"encoding/base64"
	"time"
)

func NewConnectMessage(room, participant string, sampleRate int) (*Message, error) {
	return NewMessage(TypeConnect, ConnectData{Room: room, Participant: participant, SampleRate: sampleRate})
}

func NewTranscriptMessage(text string, final bool) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{Text: text, Final: final})
}

// NewFrameMessage base64-encodes data. Width and height may be zero when the
// runtime does not know them.
func NewFrameMessage(width, height int, format string, data []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  format,
		Data:    base64.StdEncoding.EncodeToString(data),
		FrameID: frameID,
	})
}

func NewInterruptMessage() (*Message, error) {
	return NewMessage(TypeInterrupt, nil)
}

func NewFunctionCallsFinishedMessage(calls ...FunctionCall) (*Message, error) {
	return NewMessage(TypeFunctionCallsFinished, FunctionCallsFinishedData{Calls: calls})
}

func NewSpeechStartMessage(allowInterruptions bool) (*Message, error) {
	return NewMessage(TypeSpeechStart, SpeechStartData{AllowInterruptions: allowInterruptions})
}

func NewAudioMessage(audioData []byte, format string, sampleRate int) (*Message, error) {
	return NewMessage(TypeAudio, AudioData{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(audioData),
	})
}

func NewSpeechEndMessage(interrupted bool) (*Message, error) {
	return NewMessage(TypeSpeechEnd, SpeechEndData{Interrupted: interrupted})
}

func NewTurnMessage(turn TurnData) (*Message, error) {
	return NewMessage(TypeTurn, turn)
}

func NewErrorMessage(kind, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Kind: kind, Message: message})
}

func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage answers the ping sent at pingTS.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// parse backs the typed Get*Data accessors.
func parse[T any](m *Message) (*T, error) {
	var data T
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (m *Message) GetConnectData() (*ConnectData, error) { return parse[ConnectData](m) }

func (m *Message) GetTranscriptData() (*TranscriptData, error) { return parse[TranscriptData](m) }

func (m *Message) GetFrameData() (*FrameData, error) { return parse[FrameData](m) }

func (m *Message) GetFunctionCallsFinishedData() (*FunctionCallsFinishedData, error) {
	return parse[FunctionCallsFinishedData](m)
}

func (m *Message) GetSpeechStartData() (*SpeechStartData, error) { return parse[SpeechStartData](m) }

func (m *Message) GetAudioData() (*AudioData, error) { return parse[AudioData](m) }

func (m *Message) GetSpeechEndData() (*SpeechEndData, error) { return parse[SpeechEndData](m) }

func (m *Message) GetTurnData() (*TurnData, error) { return parse[TurnData](m) }

func (m *Message) GetErrorData() (*ErrorData, error) { return parse[ErrorData](m) }

func (m *Message) GetPingData() (*PingData, error) { return parse[PingData](m) }

func (m *Message) GetPongData() (*PongData, error) { return parse[PongData](m) }

func (f *FrameData) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// MIMEType maps the frame format to a MIME type, defaulting to JPEG.
func (f *FrameData) MIMEType() string {
	switch f.Format {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func (a *AudioData) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is a Provider for tests. Nil function fields fall back to the
// defaults documented on each field.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error) // nil: unavailable
	StreamFunc     func(ctx context.Context, text string) (AudioStream, error)  // nil: replay SynthesizeFunc
	HealthFunc     func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string][]string
}

// MockBytesPerChar is how much silence NewMock renders per character: 10ms
// of PCM24.
const MockBytesPerChar = 480

// NewMock renders silence sized to the text, so audio length tracks the
// sentence length.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text string) (*AudioResult, error) {
			silence := make([]byte, len(text)*MockBytesPerChar)
			return &AudioResult{
				Audio:     silence,
				Format:    PCM24,
				CharCount: len(text),
				LatencyMs: 1,
				Duration:  PCMDuration(len(silence), PCM24.SampleRate),
			}, nil
		},
	}
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string) (*AudioResult, error) { return nil, err },
		StreamFunc:     func(context.Context, string) (AudioStream, error) { return nil, err },
		HealthFunc:     func(context.Context) error { return err },
	}
}

// WithLatency delays every synthesis on m by delay, or until ctx ends.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	next := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text string) (*AudioResult, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next == nil {
			return nil, WrapError("mock", ErrProviderUnavailable)
		}
		return next(ctx, text)
	}
	return m
}

func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)
	if m.SynthesizeFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.SynthesizeFunc(ctx, text)
}

func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	m.record("Stream", text)
	switch {
	case m.StreamFunc != nil:
		return m.StreamFunc(ctx, text)
	case m.SynthesizeFunc != nil:
		result, err := m.SynthesizeFunc(ctx, text)
		if err != nil {
			return nil, err
		}
		return bufferedStream(result.Audio, result.Format), nil
	default:
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error { return nil }

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string][]string{}
	}
	m.calls[method] = append(m.calls[method], text)
}

func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls[method])
}

// Texts returns the text of every Stream call, in order. The speaker only
// streams, so this is what was said.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls["Stream"]...)
}

// SinkEvent is one call recorded by RecordingSink.
type SinkEvent struct {
	Op                 string // begin, audio, end
	AllowInterruptions bool
	Interrupted        bool
	Bytes              int
}

// RecordingSink is an AudioSink that keeps every call for assertions.
// Set Err to make the next write fail.
type RecordingSink struct {
	mu     sync.Mutex
	events []SinkEvent
	Err    error
}

// BeginSpeech records the start of an utterance.
func (r *RecordingSink) BeginSpeech(allowInterruptions bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, SinkEvent{Op: "begin", AllowInterruptions: allowInterruptions})
	return nil
}

// WriteAudio records an audio chunk.
func (r *RecordingSink) WriteAudio(chunk []byte, format AudioFormat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, SinkEvent{Op: "audio", Bytes: len(chunk)})
	return nil
}

// EndSpeech records the end of an utterance.
func (r *RecordingSink) EndSpeech(interrupted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, SinkEvent{Op: "end", Interrupted: interrupted})
	return nil
}

// Events returns a copy of the recorded calls.
func (r *RecordingSink) Events() []SinkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SinkEvent, len(r.events))
	copy(out, r.events)
	return out
}

// AudioBytes returns the total number of audio bytes written.
func (r *RecordingSink) AudioBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		n += e.Bytes
	}
	return n
}

var (
	_ Provider  = (*Mock)(nil)
	_ AudioSink = (*RecordingSink)(nil)
)

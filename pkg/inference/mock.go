package inference

import (
	"context"
	"sync"
	"time"
)

// Mock is a Provider for tests. It records every request it is given.
type Mock struct {
	ChatFunc   func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	StreamFunc func(ctx context.Context, req *ChatRequest) (Stream, error) // nil: replay ChatFunc as one chunk
	HealthFunc func(ctx context.Context) error

	// CapabilitiesOverride replaces the capabilities derived from which
	// funcs are set.
	CapabilitiesOverride *Capabilities

	mu       sync.Mutex
	counts   map[string]int
	requests []*ChatRequest
}

// NewMock answers every request with "Mock response".
func NewMock() *Mock {
	return &Mock{
		ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{
				Message:      NewAssistantMessage("Mock response"),
				FinishReason: "stop",
				Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			}, nil
		},
	}
}

// NewScripted returns a mock whose every Stream call replays chunks,
// sleeping delay before each one.
func NewScripted(delay time.Duration, chunks ...StreamChunk) *Mock {
	m := NewMock()
	m.StreamFunc = func(ctx context.Context, req *ChatRequest) (Stream, error) {
		return NewScriptedStream(ctx, delay, chunks...), nil
	}
	return m
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc:   func(context.Context, *ChatRequest) (*ChatResponse, error) { return nil, err },
		StreamFunc: func(context.Context, *ChatRequest) (Stream, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
	}
}

func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.record("Chat", req)
	if m.ChatFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.ChatFunc(ctx, req)
}

func (m *Mock) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	m.record("Stream", req)
	switch {
	case m.StreamFunc != nil:
		return m.StreamFunc(ctx, req)
	case m.ChatFunc != nil:
		resp, err := m.ChatFunc(ctx, req)
		if err != nil {
			return nil, err
		}
		return NewScriptedStream(ctx, 0, StreamChunk{
			Delta:        resp.Message.Content,
			FinishReason: "stop",
			ToolCalls:    resp.Message.ToolCalls,
			Done:         true,
		}), nil
	default:
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
}

func (m *Mock) Capabilities() Capabilities {
	if m.CapabilitiesOverride != nil {
		return *m.CapabilitiesOverride
	}
	return Capabilities{
		Chat:      m.ChatFunc != nil,
		Vision:    true,
		Streaming: m.StreamFunc != nil || m.ChatFunc != nil,
		Tools:     true,
	}
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", nil)
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error { return nil }

func (m *Mock) record(method string, req *ChatRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[method]++
	if req != nil {
		m.requests = append(m.requests, req)
	}
}

func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

// Requests returns every request passed to Chat or Stream, oldest first.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.requests...)
}

// LastRequest returns nil before the first call.
func (m *Mock) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

var _ Provider = (*Mock)(nil)

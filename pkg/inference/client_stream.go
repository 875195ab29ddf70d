package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
)

func (c *Client) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyConversation
	}
	resp, err := c.post(ctx, c.stream, c.request(req, true))
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &sseStream{
		scanner: scanner,
		body:    resp.Body,
		calls:   map[int]*ToolCall{},
	}, nil
}

// sseStream reads "data:" events. Text deltas are returned as they arrive;
// tool-call fragments are merged by index and returned on the Done chunk.
type sseStream struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
	closed  atomic.Bool

	calls  map[int]*ToolCall
	finish string
	done   bool
}

func (s *sseStream) Recv() (*StreamChunk, error) {
	for !s.done {
		if !s.scanner.Scan() {
			if s.closed.Load() {
				return nil, ErrStreamClosed
			}
			if err := s.scanner.Err(); err != nil {
				return nil, WrapError(providerClient, fmt.Errorf("read stream: %w", err))
			}
			break
		}

		data, ok := strings.CutPrefix(strings.TrimSpace(s.scanner.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			break
		}

		var chunk wireChunk
		if json.Unmarshal([]byte(data), &chunk) != nil || len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		for _, frag := range choice.Delta.ToolCalls {
			s.merge(frag)
		}
		if choice.FinishReason != "" {
			s.finish = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			return &StreamChunk{Delta: choice.Delta.Content}, nil
		}
	}
	return s.last(), nil
}

func (s *sseStream) merge(frag wireToolCall) {
	tc := s.calls[frag.Index]
	if tc == nil {
		tc = &ToolCall{}
		s.calls[frag.Index] = tc
	}
	if frag.ID != "" {
		tc.ID = frag.ID
	}
	tc.Name += frag.Function.Name
	tc.Arguments += frag.Function.Arguments
}

// last is returned for [DONE], EOF and every Recv after either.
func (s *sseStream) last() *StreamChunk {
	if s.done {
		return &StreamChunk{Done: true}
	}
	s.done = true

	var calls []ToolCall
	for _, i := range slices.Sorted(maps.Keys(s.calls)) {
		calls = append(calls, *s.calls[i])
	}
	finish := s.finish
	if finish == "" {
		finish = "stop"
	}
	return &StreamChunk{FinishReason: finish, ToolCalls: calls, Done: true}
}

// Close unblocks a Recv waiting on the body, which then returns
// ErrStreamClosed.
func (s *sseStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.body.Close()
}

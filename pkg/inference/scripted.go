package inference

import (
	"context"
	"sync"
	"time"
)

// ScriptedStream replays a fixed list of chunks. If the script does not end
// with a Done chunk, Recv blocks after the last one until the stream is
// closed or its context ends, which models a model that stalls mid-answer.
type ScriptedStream struct {
	ctx    context.Context
	delay  time.Duration
	chunks []StreamChunk

	pos       int
	closed    chan struct{}
	closeOnce sync.Once
}

// NewScriptedStream creates a stream that replays chunks.
func NewScriptedStream(ctx context.Context, delay time.Duration, chunks ...StreamChunk) *ScriptedStream {
	return &ScriptedStream{
		ctx:    ctx,
		delay:  delay,
		chunks: chunks,
		closed: make(chan struct{}),
	}
}

// Recv returns the next scripted chunk.
func (s *ScriptedStream) Recv() (*StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		if s.pos > 0 && s.chunks[s.pos-1].Done {
			return &StreamChunk{Done: true}, nil
		}
		select {
		case <-s.closed:
			return nil, ErrStreamClosed
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.closed:
			return nil, ErrStreamClosed
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}

	select {
	case <-s.closed:
		return nil, ErrStreamClosed
	default:
	}

	chunk := s.chunks[s.pos]
	s.pos++
	return &chunk, nil
}

// Close stops the stream and unblocks Recv.
func (s *ScriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

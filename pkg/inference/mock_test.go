package inference

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestScriptedStream(t *testing.T) {
	m := NewScripted(0,
		StreamChunk{Delta: "Hello "},
		StreamChunk{Delta: "world."},
		StreamChunk{FinishReason: "stop", Done: true},
	)

	stream, err := m.Stream(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	text, _, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if text != "Hello world." {
		t.Errorf("Unexpected text %q", text)
	}
	if m.CallCount("Stream") != 1 {
		t.Errorf("Expected 1 Stream call, got %d", m.CallCount("Stream"))
	}
	if got := m.LastRequest(); got == nil || got.Messages[0].Content != "hi" {
		t.Errorf("Request not recorded: %+v", got)
	}
}

func TestScriptedStreamBlocksUntilClose(t *testing.T) {
	stream := NewScriptedStream(context.Background(), 0, StreamChunk{Delta: "partial"})

	if chunk, err := stream.Recv(); err != nil || chunk.Delta != "partial" {
		t.Fatalf("Expected partial chunk, got %v %v", chunk, err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := stream.Recv()
		errc <- err
	}()

	select {
	case <-errc:
		t.Fatal("Recv returned before Close")
	case <-time.After(20 * time.Millisecond):
	}

	stream.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrStreamClosed) {
			t.Errorf("Expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock")
	}
}

func TestScriptedStreamContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := NewScriptedStream(ctx, time.Hour, StreamChunk{Delta: "never"})

	cancel()
	if _, err := stream.Recv(); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMockDefaultStream(t *testing.T) {
	m := NewMock()
	stream, err := m.Stream(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	text, _, _ := Collect(stream)
	if text != "Mock response" {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestWithError(t *testing.T) {
	want := errors.New("down")
	m := WithError(want)
	if _, err := m.Stream(context.Background(), &ChatRequest{}); !errors.Is(err, want) {
		t.Errorf("Expected %v, got %v", want, err)
	}
}

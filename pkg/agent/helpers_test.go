package agent

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/history"
	"github.com/teslashibe/go-voiceagent/pkg/inference"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// fakeSynth collects the text of every Say call.
type fakeSynth struct {
	mu    sync.Mutex
	said  []string
	allow []bool

	// hold makes the next n calls stop after their first piece of text
	// and wait for cancellation.
	hold  int
	err   error
	delay time.Duration
	heard chan string

	active    int32
	maxActive int32
}

func (f *fakeSynth) Say(ctx context.Context, text <-chan string, allow bool) error {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		old := atomic.LoadInt32(&f.maxActive)
		if n <= old || atomic.CompareAndSwapInt32(&f.maxActive, old, n) {
			break
		}
	}

	f.mu.Lock()
	hold := f.hold > 0
	if hold {
		f.hold--
	}
	f.mu.Unlock()

	var sb strings.Builder
	defer func() {
		f.mu.Lock()
		f.said = append(f.said, sb.String())
		f.allow = append(f.allow, allow)
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-text:
			if !ok {
				return f.err
			}
			sb.WriteString(s)
			if f.heard != nil {
				select {
				case f.heard <- s:
				default:
				}
			}
			if hold {
				<-ctx.Done()
				return ctx.Err()
			}
			if f.delay > 0 {
				time.Sleep(f.delay)
			}
		}
	}
}

func (f *fakeSynth) Said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

func testConfig(prompt string) voice.Config {
	cfg := voice.DefaultConfig()
	cfg.SystemPrompt = prompt
	return cfg
}

func newTestOrchestrator(t *testing.T, llm inference.Provider, synth Synthesizer, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(testConfig("P"), llm, synth, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func reply(text string) *inference.Mock {
	return inference.NewScripted(0, inference.StreamChunk{Delta: text, FinishReason: "stop", Done: true})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testFrame(id uint64) *history.Image {
	return &history.Image{
		Data:     []byte{0xff, 0xd8, byte(id)},
		MIMEType: "image/jpeg",
		Width:    640,
		Height:   480,
		FrameID:  id,
	}
}

func voiceImageToolWithHandler(fn func(map[string]any) (string, error)) voice.Tool {
	tool := voice.ImageTool()
	tool.Handler = fn
	return tool
}

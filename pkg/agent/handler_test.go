package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/history"
	"github.com/teslashibe/go-voiceagent/pkg/inference"
)

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []job
	err  error
}

func (r *recordingScheduler) Schedule(text string, attachImage bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job{text: text, attachImage: attachImage})
	return nil
}

func TestFunctionCallHandler(t *testing.T) {
	tests := []struct {
		name  string
		calls []CalledFunction
		want  string
	}{
		{"empty list", nil, ""},
		{"missing argument", []CalledFunction{{Name: "image", Arguments: map[string]any{}}}, ""},
		{"nil arguments", []CalledFunction{{Name: "image"}}, ""},
		{"empty message", []CalledFunction{{Name: "image", Arguments: map[string]any{"user_msg": ""}}}, ""},
		{"not a string", []CalledFunction{{Name: "image", Arguments: map[string]any{"user_msg": 42}}}, ""},
		{"first call only", []CalledFunction{
			{Name: "image", Arguments: map[string]any{"user_msg": "what is this"}},
			{Name: "image", Arguments: map[string]any{"user_msg": "ignored"}},
		}, "what is this"},
		{"missing on first call", []CalledFunction{
			{Name: "image"},
			{Name: "image", Arguments: map[string]any{"user_msg": "ignored"}},
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &recordingScheduler{}
			h := NewFunctionCallHandler(sched, nil)

			scheduled := h.Handle(tt.calls)
			if scheduled != (tt.want != "") {
				t.Errorf("Handle = %v", scheduled)
			}
			if tt.want == "" {
				if len(sched.jobs) != 0 {
					t.Errorf("expected no-op, got %+v", sched.jobs)
				}
				return
			}
			if len(sched.jobs) != 1 || sched.jobs[0].text != tt.want || !sched.jobs[0].attachImage {
				t.Errorf("unexpected jobs %+v", sched.jobs)
			}
		})
	}
}

func TestFunctionCallHandlerQueueFull(t *testing.T) {
	h := NewFunctionCallHandler(&recordingScheduler{err: ErrQueueFull}, nil)
	if h.Handle([]CalledFunction{{Name: "image", Arguments: map[string]any{"user_msg": "hi"}}}) {
		t.Error("expected dropped call")
	}
}

func TestOnFunctionCallCompletedNoop(t *testing.T) {
	llm := reply("ok")
	o := newTestOrchestrator(t, llm, &fakeSynth{})
	o.UpdateLatestFrame(testFrame(1))

	o.OnFunctionCallCompleted(nil)
	o.OnFunctionCallCompleted([]CalledFunction{})
	o.OnFunctionCallCompleted([]CalledFunction{{Name: "image", Arguments: map[string]any{"other": "x"}}})

	time.Sleep(50 * time.Millisecond)
	if n := len(o.History()); n != 1 {
		t.Errorf("history changed: %d turns", n)
	}
	if llm.CallCount("Stream") != 0 {
		t.Error("model was called")
	}
}

func TestOnFunctionCallCompletedSchedules(t *testing.T) {
	synth := &fakeSynth{}
	o := newTestOrchestrator(t, reply("You are holding a mug."), synth)
	o.UpdateLatestFrame(testFrame(9))

	o.OnFunctionCallCompleted([]CalledFunction{{
		Name:      "image",
		Arguments: map[string]any{"user_msg": "What am I holding?"},
	}})

	waitFor(t, "scheduled cycle", func() bool { return len(o.History()) == 3 })

	user := o.History()[1]
	if user.Text != "What am I holding?" || !user.HasImage() || user.Image.FrameID != 9 {
		t.Errorf("unexpected user turn %+v", user)
	}
}

func TestToolLoop(t *testing.T) {
	var calls int32
	llm := inference.NewMock()
	llm.StreamFunc = func(ctx context.Context, req *inference.ChatRequest) (inference.Stream, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return inference.NewScriptedStream(ctx, 0, inference.StreamChunk{
				FinishReason: "tool_calls",
				ToolCalls: []inference.ToolCall{{
					ID:        "call_1",
					Name:      "image",
					Arguments: `{"user_msg":"What am I holding?"}`,
				}},
				Done: true,
			}), nil
		}
		return inference.NewScriptedStream(ctx, 0, inference.StreamChunk{Delta: "A coffee mug.", Done: true}), nil
	}

	o := newTestOrchestrator(t, llm, &fakeSynth{})
	o.UpdateLatestFrame(testFrame(3))

	if err := o.OnUserUtterance(context.Background(), "Can you see this?", false); err != nil {
		t.Fatalf("OnUserUtterance failed: %v", err)
	}
	waitFor(t, "image cycle", func() bool { return len(o.History()) == 5 })

	turns := o.History()
	if turns[1].HasImage() {
		t.Error("first utterance should not carry the frame")
	}
	if len(turns[2].ToolCalls) != 1 || turns[2].ToolCalls[0].ID != "call_1" {
		t.Errorf("tool call not recorded: %+v", turns[2])
	}
	if turns[3].Role != history.RoleUser || turns[3].Text != "What am I holding?" || !turns[3].HasImage() {
		t.Errorf("unexpected image turn %+v", turns[3])
	}
	if turns[4].Text != "A coffee mug." {
		t.Errorf("unexpected answer %q", turns[4].Text)
	}

	// The follow-up request answers the tool call so the model accepts it.
	reqs := llm.Requests()
	var found bool
	for _, m := range reqs[1].Messages {
		if m.Role == inference.RoleTool && m.ToolCallID == "call_1" {
			found = true
		}
	}
	if !found {
		t.Error("tool result missing from follow-up request")
	}
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	if len(last.Images) != 1 {
		t.Error("follow-up request should carry the frame")
	}
}

func TestToolHandlerResult(t *testing.T) {
	var got map[string]any
	tool := voiceImageToolWithHandler(func(args map[string]any) (string, error) {
		got = args
		return "frame captured", nil
	})

	var calls int32
	llm := inference.NewMock()
	llm.StreamFunc = func(ctx context.Context, req *inference.ChatRequest) (inference.Stream, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return inference.NewScriptedStream(ctx, 0, inference.StreamChunk{
				ToolCalls: []inference.ToolCall{{ID: "c", Name: "image", Arguments: `{"user_msg":"look"}`}},
				Done:      true,
			}), nil
		}
		return inference.NewScriptedStream(ctx, 0, inference.StreamChunk{Delta: "ok", Done: true}), nil
	}

	o := newTestOrchestrator(t, llm, &fakeSynth{}, WithTools(tool))
	if err := o.OnUserUtterance(context.Background(), "hi", false); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "follow-up", func() bool { return llm.CallCount("Stream") == 2 })

	if got["user_msg"] != "look" {
		t.Errorf("handler got %v", got)
	}
	for _, m := range llm.Requests()[1].Messages {
		if m.Role == inference.RoleTool && m.Content != "frame captured" {
			t.Errorf("unexpected tool result %q", m.Content)
		}
	}
}

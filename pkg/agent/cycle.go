package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/history"
	"github.com/teslashibe/go-voiceagent/pkg/inference"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// answer is what the model produced during one cycle.
type answer struct {
	text  string
	calls []inference.ToolCall
	err   error
}

// OnUserUtterance runs one answer cycle for a final user utterance. With
// attachImage set, the cached frame (if any) is attached to the user turn.
//
// The answer is spoken interruptibly. On interruption the partial answer is
// recorded with Interrupted set and nil is returned. Model and synthesizer
// failures return ErrModelUnavailable or ErrSynthesisFailure and leave the
// history without an assistant turn.
func (o *Orchestrator) OnUserUtterance(ctx context.Context, text string, attachImage bool) error {
	if o.isClosed() {
		return ErrClosed
	}

	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	var img *history.Image
	if attachImage {
		img = o.LatestFrame()
	}
	user := history.NewUserTurn(text, img)
	if err := o.appendTurn(user); err != nil {
		return err
	}

	start := time.Now()
	o.metrics.MarkUtterance()
	o.logger.Info("user utterance", "text", text, "image", img != nil)

	cctx, cancel := o.cycleContext(ctx)
	defer cancel()

	c := o.beginSpeech(cancel, true, true)
	ans, sayErr := o.respond(cctx)
	interrupted := o.endSpeech(c)

	switch {
	case sayErr == nil && ans.err == nil:
		// completed
	case interrupted:
		o.logger.Info("answer interrupted", "spoken", len(ans.text), o.elapsed(start))
		o.metrics.MarkResponseDone(true, false)
		if ans.text == "" && len(ans.calls) == 0 {
			return nil
		}
		return o.appendTurn(history.NewAssistantTurn(ans.text, historyCalls(ans.calls), true))
	case errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		o.metrics.MarkResponseDone(false, true)
		return o.fail(fmt.Errorf("%w: response timeout after %s", ErrModelUnavailable, o.cfg.ResponseTimeout))
	case ctx.Err() != nil:
		o.metrics.MarkResponseDone(false, true)
		return ctx.Err()
	case sayErr != nil:
		o.metrics.MarkResponseDone(false, true)
		return o.fail(fmt.Errorf("%w: %w", ErrSynthesisFailure, sayErr))
	default:
		o.metrics.MarkResponseDone(false, true)
		return o.fail(fmt.Errorf("%w: %w", ErrModelUnavailable, ans.err))
	}

	if err := o.appendTurn(history.NewAssistantTurn(ans.text, historyCalls(ans.calls), false)); err != nil {
		return err
	}
	o.metrics.MarkResponseDone(false, false)
	o.logger.Info("answer complete", "chars", len(ans.text), "tool_calls", len(ans.calls), o.elapsed(start))

	if len(ans.calls) > 0 {
		o.OnFunctionCallCompleted(o.runTools(ans.calls))
	}
	return nil
}

// Say speaks a fixed text, such as the greeting, without touching history.
func (o *Orchestrator) Say(ctx context.Context, text string, allowInterruptions bool) error {
	if o.isClosed() {
		return ErrClosed
	}

	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan string, 1)
	ch <- text
	close(ch)

	c := o.beginSpeech(cancel, allowInterruptions, false)
	err := o.synth.Say(sctx, ch, allowInterruptions)
	interrupted := o.endSpeech(c)

	switch {
	case err == nil:
		return nil
	case interrupted:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return o.fail(fmt.Errorf("%w: %w", ErrSynthesisFailure, err))
	}
}

func (o *Orchestrator) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.ResponseTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.ResponseTimeout)
	}
	return context.WithCancel(ctx)
}

// respond streams the model answer into the synthesizer. A producer
// goroutine forwards deltas while the synthesizer speaks them; whichever
// side stops first, the other is cancelled and the stream closed.
func (o *Orchestrator) respond(ctx context.Context) (answer, error) {
	sctx, stop := context.WithCancel(ctx)
	defer stop()

	req := &inference.ChatRequest{
		Messages:    o.messages(),
		Model:       o.cfg.LLMModel,
		MaxTokens:   o.cfg.LLMMaxTokens,
		Temperature: o.cfg.LLMTemperature,
		Tools:       o.defs,
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	stream, err := o.llm.Stream(sctx, req)
	if err != nil {
		return answer{err: err}, nil
	}

	deltas := make(chan string, 32)
	result := make(chan answer, 1)
	go func() {
		defer close(deltas)
		var sb strings.Builder
		for {
			chunk, err := stream.Recv()
			if err != nil {
				result <- answer{text: sb.String(), err: err}
				return
			}
			if chunk.Delta != "" {
				o.metrics.MarkFirstToken()
				sb.WriteString(chunk.Delta)
				select {
				case deltas <- chunk.Delta:
				case <-sctx.Done():
					result <- answer{text: sb.String(), err: sctx.Err()}
					return
				}
			}
			if chunk.Done {
				result <- answer{text: sb.String(), calls: chunk.ToolCalls}
				return
			}
		}
	}()

	sayErr := o.synth.Say(sctx, deltas, true)

	stop()
	stream.Close()
	ans := <-result
	return ans, sayErr
}

// messages converts the history into a model request.
func (o *Orchestrator) messages() []inference.Message {
	turns := o.history.Turns()

	o.mu.Lock()
	defer o.mu.Unlock()

	msgs := make([]inference.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case history.RoleSystem:
			msgs = append(msgs, inference.NewSystemMessage(t.Text))
		case history.RoleUser:
			if t.Image != nil {
				msgs = append(msgs, inference.NewUserMessage(t.Text, inference.Image{
					Data:     t.Image.Data,
					MIMEType: t.Image.MIMEType,
				}))
			} else {
				msgs = append(msgs, inference.NewUserMessage(t.Text))
			}
		case history.RoleAssistant:
			if t.Text == "" && len(t.ToolCalls) == 0 {
				continue
			}
			calls := make([]inference.ToolCall, len(t.ToolCalls))
			for i, tc := range t.ToolCalls {
				calls[i] = inference.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
			}
			msgs = append(msgs, inference.NewAssistantMessage(t.Text, calls...))
			for _, tc := range t.ToolCalls {
				result, ok := o.toolResults[tc.ID]
				if !ok {
					result = "done"
				}
				msgs = append(msgs, inference.NewToolMessage(tc.ID, result))
			}
		}
	}
	return msgs
}

// runTools runs the handlers for the calls the model made and returns them
// as called functions for the function-call handler.
func (o *Orchestrator) runTools(calls []inference.ToolCall) []CalledFunction {
	called := make([]CalledFunction, 0, len(calls))
	for _, tc := range calls {
		call, err := voice.ParseToolCall(tc)
		if err != nil {
			o.logger.Warn("bad tool arguments", "tool", tc.Name, "error", err)
		}

		result := "ok"
		if t, ok := o.tools[call.Name]; ok && t.Handler != nil {
			out, err := t.Handler(call.Arguments)
			if err != nil {
				o.logger.Warn("tool failed", "tool", call.Name, "error", err)
				result = "error: " + err.Error()
			} else {
				result = out
			}
		} else {
			o.logger.Info("function called", "tool", call.Name, "user_msg", call.StringArg(UserMessageArg))
		}

		o.mu.Lock()
		o.toolResults[tc.ID] = result
		o.mu.Unlock()

		called = append(called, CalledFunction{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Result:    result,
		})
	}
	return called
}

func (o *Orchestrator) fail(err error) error {
	o.logger.Error("answer failed", "error", err)
	return err
}

func historyCalls(calls []inference.ToolCall) []history.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]history.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = history.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	return out
}

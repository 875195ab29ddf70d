package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// UserMessageArg is the function argument carrying the user's words.
const UserMessageArg = "user_msg"

// CalledFunction is a finished function call as reported by the runtime or
// by the orchestrator's own tool loop.
type CalledFunction struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Result    string         `json:"result,omitempty"`
}

// Scheduler queues an answer cycle without waiting for it.
type Scheduler interface {
	Schedule(text string, attachImage bool) error
}

// FunctionCallHandler turns a "function calls finished" event into a new
// image-augmented answer cycle.
type FunctionCallHandler struct {
	sched  Scheduler
	logger *slog.Logger
}

// NewFunctionCallHandler creates a handler scheduling onto sched.
func NewFunctionCallHandler(sched Scheduler, logger *slog.Logger) *FunctionCallHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FunctionCallHandler{
		sched:  sched,
		logger: logger.With("component", "agent.functions"),
	}
}

// Handle reads user_msg from the first call and schedules
// OnUserUtterance(msg, true). Anything else is a silent no-op.
// It reports whether a cycle was scheduled.
func (h *FunctionCallHandler) Handle(calls []CalledFunction) bool {
	if len(calls) == 0 {
		return false
	}

	msg, _ := calls[0].Arguments[UserMessageArg].(string)
	if msg == "" {
		h.logger.Debug("ignoring function call",
			"function", calls[0].Name,
			"error", fmt.Errorf("%w: missing %s", ErrMalformedFunctionCall, UserMessageArg))
		return false
	}

	if err := h.sched.Schedule(msg, true); err != nil {
		h.logger.Warn("function call dropped", "function", calls[0].Name, "error", err)
		return false
	}
	h.logger.Debug("function call scheduled", "function", calls[0].Name, "user_msg", msg)
	return true
}

// OnFunctionCallCompleted forwards finished function calls to the handler.
// It never blocks on the resulting cycle.
func (o *Orchestrator) OnFunctionCallCompleted(calls []CalledFunction) {
	o.handler.Handle(calls)
}

// Schedule queues an answer cycle on the work queue and returns at once.
func (o *Orchestrator) Schedule(text string, attachImage bool) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}

	select {
	case o.queue <- job{text: text, attachImage: attachImage}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (o *Orchestrator) work() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case j := <-o.queue:
			if o.isClosed() {
				return
			}
			if err := o.OnUserUtterance(o.baseCtx, j.text, j.attachImage); err != nil && !errors.Is(err, context.Canceled) {
				o.reportError(err)
			}
		}
	}
}

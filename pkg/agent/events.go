package agent

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-voiceagent/pkg/history"
)

// Event is something the media runtime reports to the orchestrator.
type Event interface {
	isEvent()
}

// UtteranceEvent is a final transcript.
type UtteranceEvent struct {
	Text        string
	AttachImage bool
}

// FrameEvent carries the newest video frame.
type FrameEvent struct {
	Frame *history.Image
}

// InterruptEvent reports that the user started speaking over the agent.
type InterruptEvent struct{}

// FunctionCallsFinishedEvent reports completed function calls.
type FunctionCallsFinishedEvent struct {
	Calls []CalledFunction
}

func (UtteranceEvent) isEvent()             {}
func (FrameEvent) isEvent()                 {}
func (InterruptEvent) isEvent()             {}
func (FunctionCallsFinishedEvent) isEvent() {}

// Deliver hands an event to Run. It blocks while the inbox is full.
func (o *Orchestrator) Deliver(ev Event) error {
	if o.isClosed() {
		return ErrClosed
	}
	select {
	case <-o.done:
		return ErrClosed
	case o.events <- ev:
		return nil
	}
}

// Run processes delivered events one at a time until ctx ends or the
// orchestrator is closed. Utterances are queued for the worker so that
// frames and interruptions keep flowing while an answer is spoken.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return ErrClosed
		case ev := <-o.events:
			o.dispatch(ev)
		}
	}
}

func (o *Orchestrator) dispatch(ev Event) {
	switch e := ev.(type) {
	case UtteranceEvent:
		if err := o.Schedule(e.Text, e.AttachImage); err != nil {
			o.logger.Warn("utterance dropped", "error", err)
			o.reportError(err)
		}
	case FrameEvent:
		o.UpdateLatestFrame(e.Frame)
	case InterruptEvent:
		o.Interrupt()
	case FunctionCallsFinishedEvent:
		o.OnFunctionCallCompleted(e.Calls)
	default:
		o.logger.Warn("unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

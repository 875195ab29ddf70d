package agent

import "errors"

var (
	// ErrModelUnavailable is returned when the language model fails to open
	// or finish a response stream. No assistant turn is recorded.
	ErrModelUnavailable = errors.New("agent: model unavailable")

	// ErrSynthesisFailure is returned when the synthesizer rejects the
	// answer. No assistant turn is recorded.
	ErrSynthesisFailure = errors.New("agent: synthesis failure")

	// ErrMalformedFunctionCall marks a function call without a usable
	// user_msg argument. It is logged, never returned to callers.
	ErrMalformedFunctionCall = errors.New("agent: malformed function call")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("agent: orchestrator closed")

	// ErrQueueFull is returned when the work queue cannot take another cycle.
	ErrQueueFull = errors.New("agent: work queue full")

	ErrNoModel       = errors.New("agent: language model required")
	ErrNoSynthesizer = errors.New("agent: synthesizer required")
)

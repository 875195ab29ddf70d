// Package agent implements the conversation orchestrator of a voice session.
//
// An Orchestrator owns the chat history of one session. Each final user
// utterance starts an answer cycle: the user turn is appended, the model is
// asked for a streamed answer, the text is spoken through a Synthesizer as
// it arrives, and the assistant turn is appended when the cycle ends.
//
// Cycles never overlap. Direct calls to OnUserUtterance block until the
// current cycle finishes; cycles scheduled by events or function calls are
// queued FIFO and run one at a time on a worker goroutine.
//
// Example usage:
//
//	orch, err := agent.New(persona, llm, tts.NewStreamAdapter(speech, sink))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Close()
//
//	go orch.Run(ctx)
//	orch.Deliver(agent.UtteranceEvent{Text: "Hello"})
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-voiceagent/pkg/history"
	"github.com/teslashibe/go-voiceagent/pkg/inference"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// Synthesizer speaks text as it streams in. It returns once the channel is
// closed and all text was spoken, or earlier with ctx.Err() when ctx ends.
// tts.StreamAdapter implements it.
type Synthesizer interface {
	Say(ctx context.Context, text <-chan string, allowInterruptions bool) error
}

// State is the orchestrator's logical state.
type State int

const (
	// StateIdle means no model call is in flight.
	StateIdle State = iota
	// StateResponding means an answer is being streamed to the synthesizer.
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResponding:
		return "responding"
	default:
		return "unknown"
	}
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	tools     []voice.Tool
	queueSize int
	metrics   *voice.MetricsCollector
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTools replaces the function tools offered to the model.
// The default is voice.ImageTool. Pass no tools to disable function calling.
func WithTools(tools ...voice.Tool) Option {
	return func(o *options) { o.tools = tools }
}

// WithQueueSize sets how many scheduled cycles may wait. Default 16.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithMetrics shares a metrics collector, e.g. with a dashboard.
func WithMetrics(m *voice.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

type job struct {
	text        string
	attachImage bool
}

// cycle tracks the speech that Interrupt may cancel.
type cycle struct {
	cancel        context.CancelFunc
	interruptible bool
	interrupted   bool
}

// Orchestrator drives one voice session.
type Orchestrator struct {
	cfg     voice.Config
	llm     inference.Provider
	synth   Synthesizer
	logger  *slog.Logger
	history *history.History
	metrics *voice.MetricsCollector
	handler *FunctionCallHandler

	tools map[string]voice.Tool
	defs  []inference.Tool

	// cycleMu serializes answer cycles and spoken utterances.
	cycleMu sync.Mutex

	mu          sync.Mutex
	state       State
	current     *cycle
	frame       *history.Image
	toolResults map[string]string

	queue  chan job
	events chan Event

	baseCtx   context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	cbMu          sync.RWMutex
	onStateChange func(State)
	onTurn        func(history.Turn)
	onError       func(error)
}

// New creates an orchestrator whose history starts with cfg's system prompt
// and starts its work queue.
func New(cfg voice.Config, llm inference.Provider, synth Synthesizer, opts ...Option) (*Orchestrator, error) {
	if llm == nil {
		return nil, ErrNoModel
	}
	if synth == nil {
		return nil, ErrNoSynthesizer
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		logger:    slog.Default(),
		tools:     []voice.Tool{voice.ImageTool()},
		queueSize: 16,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = voice.NewMetricsCollector()
	}

	ctx, cancel := context.WithCancel(context.Background())
	orch := &Orchestrator{
		cfg:         cfg,
		llm:         llm,
		synth:       synth,
		logger:      o.logger.With("component", "agent.orchestrator", "persona", cfg.Name),
		history:     history.New(cfg.SystemPrompt),
		metrics:     o.metrics,
		tools:       make(map[string]voice.Tool, len(o.tools)),
		toolResults: make(map[string]string),
		queue:       make(chan job, o.queueSize),
		events:      make(chan Event, 64),
		baseCtx:     ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for _, t := range o.tools {
		orch.tools[t.Name] = t
	}
	if llm.Capabilities().Tools {
		orch.defs = voice.InferenceTools(o.tools)
	}
	orch.handler = NewFunctionCallHandler(orch, o.logger)

	if fa, ok := synth.(interface{ OnFirstAudio(func()) }); ok {
		fa.OnFirstAudio(orch.metrics.MarkFirstAudio)
	}

	orch.wg.Add(1)
	go orch.work()

	return orch, nil
}

// Config returns the persona configuration.
func (o *Orchestrator) Config() voice.Config {
	return o.cfg
}

// History returns a snapshot of the conversation, system turn first.
func (o *Orchestrator) History() []history.Turn {
	return o.history.Turns()
}

// Metrics returns the latency collector.
func (o *Orchestrator) Metrics() *voice.MetricsCollector {
	return o.metrics
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// UpdateLatestFrame replaces the cached frame. nil clears it.
func (o *Orchestrator) UpdateLatestFrame(frame *history.Image) {
	o.mu.Lock()
	o.frame = frame
	o.mu.Unlock()
}

// LatestFrame returns the cached frame, or nil.
func (o *Orchestrator) LatestFrame() *history.Image {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frame
}

// Interrupt stops the speech in progress if it was started interruptible.
// It reports whether anything was interrupted.
func (o *Orchestrator) Interrupt() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	c := o.current
	if c == nil || !c.interruptible || c.interrupted {
		return false
	}
	c.interrupted = true
	c.cancel()
	o.logger.Debug("interrupted")
	return true
}

// OnStateChange sets the callback for state transitions.
func (o *Orchestrator) OnStateChange(fn func(State)) {
	o.cbMu.Lock()
	o.onStateChange = fn
	o.cbMu.Unlock()
}

// OnTurn sets the callback fired after a turn is appended to history.
func (o *Orchestrator) OnTurn(fn func(history.Turn)) {
	o.cbMu.Lock()
	o.onTurn = fn
	o.cbMu.Unlock()
}

// OnError sets the callback for errors from queued cycles.
func (o *Orchestrator) OnError(fn func(error)) {
	o.cbMu.Lock()
	o.onError = fn
	o.cbMu.Unlock()
}

// Close stops the worker and cancels the running cycle. Queued cycles are
// dropped.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		close(o.done)
		o.cancel()
	})
	o.wg.Wait()
	return nil
}

func (o *Orchestrator) isClosed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// beginSpeech registers the cancel func Interrupt will use.
func (o *Orchestrator) beginSpeech(cancel context.CancelFunc, interruptible, responding bool) *cycle {
	c := &cycle{cancel: cancel, interruptible: interruptible}
	o.mu.Lock()
	o.current = c
	changed := responding && o.state != StateResponding
	if responding {
		o.state = StateResponding
	}
	o.mu.Unlock()

	if changed {
		o.emitState(StateResponding)
	}
	return c
}

// endSpeech clears the cycle and reports whether it was interrupted.
func (o *Orchestrator) endSpeech(c *cycle) bool {
	o.mu.Lock()
	if o.current == c {
		o.current = nil
	}
	interrupted := c.interrupted
	changed := o.state != StateIdle
	o.state = StateIdle
	o.mu.Unlock()

	if changed {
		o.emitState(StateIdle)
	}
	return interrupted
}

func (o *Orchestrator) emitState(s State) {
	o.cbMu.RLock()
	fn := o.onStateChange
	o.cbMu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

func (o *Orchestrator) appendTurn(t history.Turn) error {
	if err := o.history.Append(t); err != nil {
		return err
	}
	o.cbMu.RLock()
	fn := o.onTurn
	o.cbMu.RUnlock()
	if fn != nil {
		fn(t)
	}
	return nil
}

func (o *Orchestrator) reportError(err error) {
	o.cbMu.RLock()
	fn := o.onError
	o.cbMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (o *Orchestrator) elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

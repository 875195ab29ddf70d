package tts

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-voiceagent/pkg/tokenize"
)

// AudioSink receives synthesized speech. The runtime connection implements
// it; allowInterruptions tells the runtime whether user speech may cut the
// utterance short.
type AudioSink interface {
	BeginSpeech(allowInterruptions bool) error
	WriteAudio(chunk []byte, format AudioFormat) error
	EndSpeech(interrupted bool) error
}

// StreamAdapter speaks streamed text through a Provider into an AudioSink.
// One utterance plays at a time.
type StreamAdapter struct {
	provider Provider
	sink     AudioSink
	tokens   tokenize.Config
	logger   *slog.Logger

	busy sync.Mutex

	cbMu         sync.RWMutex
	onFirstAudio func()
	onSentence   func(string)
}

// AdapterOption configures a StreamAdapter.
type AdapterOption func(*StreamAdapter)

// WithTokenizer overrides sentence splitting.
func WithTokenizer(cfg tokenize.Config) AdapterOption {
	return func(a *StreamAdapter) { a.tokens = cfg }
}

// WithAdapterLogger sets the logger.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *StreamAdapter) { a.logger = l.With("component", "tts.adapter") }
}

// NewStreamAdapter creates an adapter writing into sink.
func NewStreamAdapter(p Provider, sink AudioSink, opts ...AdapterOption) *StreamAdapter {
	a := &StreamAdapter{
		provider: p,
		sink:     sink,
		tokens:   tokenize.DefaultConfig(),
		logger:   slog.Default().With("component", "tts.adapter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnFirstAudio sets a callback fired when the first audio chunk of an
// utterance reaches the sink.
func (a *StreamAdapter) OnFirstAudio(fn func()) {
	a.cbMu.Lock()
	a.onFirstAudio = fn
	a.cbMu.Unlock()
}

// OnSentence sets a callback fired before each sentence is synthesized.
func (a *StreamAdapter) OnSentence(fn func(string)) {
	a.cbMu.Lock()
	a.onSentence = fn
	a.cbMu.Unlock()
}

// Say speaks text as it arrives on the channel until the channel is closed.
// It returns ctx.Err() if ctx ends first, a *SinkError if the sink fails and
// the provider error if synthesis fails. The sink always sees a matching
// EndSpeech once BeginSpeech succeeded.
func (a *StreamAdapter) Say(ctx context.Context, text <-chan string, allowInterruptions bool) (err error) {
	if !a.busy.TryLock() {
		return ErrSpeechInProgress
	}
	defer a.busy.Unlock()

	if err := a.sink.BeginSpeech(allowInterruptions); err != nil {
		return &SinkError{Op: "begin", Err: err}
	}
	defer func() {
		interrupted := err != nil && ctx.Err() != nil
		if endErr := a.sink.EndSpeech(interrupted); endErr != nil && err == nil {
			err = &SinkError{Op: "end", Err: endErr}
		}
	}()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sentences := make(chan string, 16)
	tokDone := make(chan struct{})
	go func() {
		defer close(tokDone)
		tokenize.New(a.tokens).Run(sctx, text, sentences)
	}()
	defer func() {
		cancel()
		<-tokDone
	}()

	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sentence, ok := <-sentences:
			if !ok {
				// Run also closes on cancel; report that as cancellation.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			if err := a.speak(sctx, sentence, &first); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}
	}
}

// Speak is Say for a single, already complete text.
func (a *StreamAdapter) Speak(ctx context.Context, text string, allowInterruptions bool) error {
	ch := make(chan string, 1)
	ch <- text
	close(ch)
	return a.Say(ctx, ch, allowInterruptions)
}

func (a *StreamAdapter) speak(ctx context.Context, sentence string, first *bool) error {
	a.cbMu.RLock()
	onSentence, onFirst := a.onSentence, a.onFirstAudio
	a.cbMu.RUnlock()

	if onSentence != nil {
		onSentence(sentence)
	}

	stream, err := a.provider.Stream(ctx, sentence)
	if err != nil {
		return err
	}
	defer stream.Close()

	format := stream.Format()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunk, err := stream.Read()
		if err != nil {
			return err
		}
		if chunk == nil {
			return nil
		}
		if err := a.sink.WriteAudio(chunk, format); err != nil {
			return &SinkError{Op: "write", Err: err}
		}
		if *first {
			*first = false
			if onFirst != nil {
				onFirst()
			}
		}
	}
}

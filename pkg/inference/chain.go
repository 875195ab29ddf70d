package inference

import (
	"context"
	"errors"
	"log/slog"
)

// Chain falls back across providers in order. The voice agent puts a hosted
// model first and a local OpenAI-compatible server behind it.
//
// Only opening a request falls back. Once a stream is open its failures are
// the caller's: the user may already have heard part of the answer.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a chain over providers, tried in the order given.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger is NewChain with an explicit logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "inference.chain"),
	}, nil
}

// fallback calls fn on each provider that supports the operation and
// returns the first success.
func fallback[T any](ctx context.Context, c *Chain, op string, supports func(Capabilities) bool, fn func(Provider) (T, error)) (T, error) {
	var zero T
	var errs []error
	for i, p := range c.providers {
		if !supports(p.Capabilities()) {
			continue
		}
		v, err := fn(p)
		if err == nil {
			if i > 0 {
				c.logger.Info("using fallback model", "op", op, "provider_index", i)
			}
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("model provider failed", "op", op, "provider_index", i, "error", err)
	}
	if len(errs) == 0 {
		return zero, ErrProviderUnavailable
	}
	return zero, &ChainError{Errors: errs}
}

// Chat returns the first successful completion.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return fallback(ctx, c, "chat",
		func(caps Capabilities) bool { return caps.Chat },
		func(p Provider) (*ChatResponse, error) { return p.Chat(ctx, req) })
}

// Stream returns the first stream that opens. Providers that cannot
// stream are skipped.
func (c *Chain) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	return fallback(ctx, c, "stream",
		func(caps Capabilities) bool { return caps.Streaming },
		func(p Provider) (Stream, error) { return p.Stream(ctx, req) })
}

// Capabilities is the union over all providers.
func (c *Chain) Capabilities() Capabilities {
	var caps Capabilities
	for _, p := range c.providers {
		pc := p.Capabilities()
		caps.Chat = caps.Chat || pc.Chat
		caps.Vision = caps.Vision || pc.Vision
		caps.Streaming = caps.Streaming || pc.Streaming
		caps.Tools = caps.Tools || pc.Tools
	}
	return caps
}

// Health succeeds if any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return WrapError("chain", &ChainError{Errors: errs})
}

// Close closes every provider and joins their errors.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the providers in fallback order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

var _ Provider = (*Chain)(nil)

package inference

import (
	"log/slog"
	"time"
)

// Config is shared by the SDK-backed and the plain HTTP providers.
// Per-request MaxTokens and Temperature override the values here.
type Config struct {
	BaseURL string
	APIKey  string // empty for local servers
	Model   string // must accept image input for the look tool

	MaxTokens   int
	Temperature float64

	Timeout       time.Duration // non-streaming calls and health checks
	StreamTimeout time.Duration // whole lifetime of one streamed answer

	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

type Option func(*Config)

func WithBaseURL(url string) Option      { return func(c *Config) { c.BaseURL = url } }
func WithAPIKey(key string) Option       { return func(c *Config) { c.APIKey = key } }
func WithModel(model string) Option      { return func(c *Config) { c.Model = model } }
func WithMaxTokens(n int) Option         { return func(c *Config) { c.MaxTokens = n } }
func WithTemperature(t float64) Option   { return func(c *Config) { c.Temperature = t } }
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }
func WithLogger(l *slog.Logger) Option   { return func(c *Config) { c.Logger = l } }
func WithStreamTimeout(d time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = d }
}

// WithRetry sets how many times a failed request is repeated and the base
// delay between attempts. Only opening a request is retried.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// DefaultConfig matches the built-in personas: gpt-4o with short spoken
// answers.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://api.openai.com/v1",
		Model:         "gpt-4o",
		MaxTokens:     512,
		Temperature:   0.7,
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		MaxRetries:    2,
		RetryDelay:    200 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

func newConfig(opts []Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Model == "" {
		return nil, ErrNoModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg, nil
}

package tts

import (
	"fmt"
	"log/slog"
	"time"
)

// Config configures the OpenAI speech provider. Build one with NewConfig.
type Config struct {
	APIKey  string
	BaseURL string

	VoiceID      string
	ModelID      string
	Speed        float64 // MinSpeed..MaxSpeed, 0 means provider default
	Instructions string  // dropped for models without SupportsInstructions

	OutputFormat Encoding

	Timeout       time.Duration
	StreamTimeout time.Duration
	MaxRetries    int
	RetryDelay    time.Duration // multiplied by the attempt number

	Logger *slog.Logger
}

type Option func(*Config)

func WithAPIKey(key string) Option       { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(url string) Option      { return func(c *Config) { c.BaseURL = url } }
func WithVoice(id string) Option         { return func(c *Config) { c.VoiceID = id } }
func WithModel(id string) Option         { return func(c *Config) { c.ModelID = id } }
func WithSpeed(speed float64) Option     { return func(c *Config) { c.Speed = speed } }
func WithInstructions(s string) Option   { return func(c *Config) { c.Instructions = s } }
func WithOutputFormat(e Encoding) Option { return func(c *Config) { c.OutputFormat = e } }
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }
func WithLogger(l *slog.Logger) Option   { return func(c *Config) { c.Logger = l } }

func WithStreamTimeout(d time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = d }
}

func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// NewConfig applies opts over the defaults (alloy on gpt-4o-mini-tts,
// 24 kHz PCM) and validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		VoiceID:       VoiceAlloy,
		ModelID:       ModelGPT4oMiniTTS,
		Speed:         1.0,
		OutputFormat:  EncodingPCM24,
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		MaxRetries:    2,
		RetryDelay:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch {
	case cfg.APIKey == "":
		return nil, ErrNoAPIKey
	case cfg.VoiceID == "":
		return nil, ErrNoVoiceID
	case cfg.Speed != 0 && (cfg.Speed < MinSpeed || cfg.Speed > MaxSpeed):
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidSpeed, cfg.Speed)
	}
	return cfg, nil
}

package voice

import (
	"errors"
	"fmt"
	"time"
)

// LLMProvider selects the language-model backend.
type LLMProvider string

const (
	// LLMOpenAI uses the official OpenAI SDK.
	LLMOpenAI LLMProvider = "openai"

	// LLMCompatible uses plain HTTP against any OpenAI-compatible server.
	LLMCompatible LLMProvider = "compatible"
)

// TTSProvider selects the speech backend.
type TTSProvider string

const (
	TTSOpenAI TTSProvider = "openai"
	TTSMock   TTSProvider = "mock" // silent audio, for local runs
)

// Voice configures speech synthesis for a persona.
type Voice struct {
	ID           string  `yaml:"id" json:"id"`
	Model        string  `yaml:"model,omitempty" json:"model,omitempty"`
	Speed        float64 `yaml:"speed,omitempty" json:"speed,omitempty"`
	Instructions string  `yaml:"instructions,omitempty" json:"instructions,omitempty"`
}

// Config is everything that differs between personas.
type Config struct {
	Name         string `yaml:"name" json:"name"`
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
	Greeting     string `yaml:"greeting" json:"greeting"`

	Voice Voice `yaml:"voice" json:"voice"`

	// LLM settings
	LLMModel       string      `yaml:"llm_model" json:"llm_model"`
	LLMTemperature float64     `yaml:"llm_temperature,omitempty" json:"llm_temperature,omitempty"`
	LLMMaxTokens   int         `yaml:"llm_max_tokens,omitempty" json:"llm_max_tokens,omitempty"`
	LLMProvider    LLMProvider `yaml:"llm_provider,omitempty" json:"llm_provider,omitempty"`

	TTSProvider TTSProvider `yaml:"tts_provider,omitempty" json:"tts_provider,omitempty"`

	// STTProvider names the transcription service the runtime should use.
	// The agent never transcribes; it only reports this value.
	STTProvider string `yaml:"stt_provider,omitempty" json:"stt_provider,omitempty"`

	// ResponseTimeout bounds one answer. Zero means no limit.
	ResponseTimeout time.Duration `yaml:"response_timeout,omitempty" json:"response_timeout,omitempty"`
}

// DefaultConfig returns a neutral assistant on gpt-4o.
func DefaultConfig() Config {
	return Config{
		Name:         "assistant",
		SystemPrompt: "You are a helpful voice assistant. Keep answers short and conversational.",
		Greeting:     "Hi, what can I help you with?",
		Voice: Voice{
			ID:    "alloy",
			Model: "gpt-4o-mini-tts",
			Speed: 1.0,
		},
		LLMModel:       "gpt-4o",
		LLMTemperature: 0.7,
		LLMMaxTokens:   512,
		LLMProvider:    LLMOpenAI,
		TTSProvider:    TTSOpenAI,
		STTProvider:    "deepgram",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SystemPrompt == "" {
		return errors.New("voice: system prompt required")
	}
	if c.LLMModel == "" {
		return errors.New("voice: LLM model required")
	}
	if c.Voice.ID == "" {
		return errors.New("voice: voice id required")
	}

	switch c.LLMProvider {
	case LLMOpenAI, LLMCompatible, "":
	default:
		return fmt.Errorf("voice: unknown LLM provider: %s", c.LLMProvider)
	}
	switch c.TTSProvider {
	case TTSOpenAI, TTSMock, "":
	default:
		return fmt.Errorf("voice: unknown TTS provider: %s", c.TTSProvider)
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return errors.New("voice: LLM temperature must be between 0 and 2")
	}
	if c.Voice.Speed != 0 && (c.Voice.Speed < 0.25 || c.Voice.Speed > 4) {
		return errors.New("voice: speed must be between 0.25 and 4")
	}
	if c.ResponseTimeout < 0 {
		return errors.New("voice: response timeout must not be negative")
	}
	return nil
}

// WithSystemPrompt returns a copy with the system prompt set.
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithLLMProvider returns a copy with the model backend set.
func (c Config) WithLLMProvider(p LLMProvider) Config {
	c.LLMProvider = p
	return c
}

// WithTTSProvider returns a copy with the speech backend set.
func (c Config) WithTTSProvider(p TTSProvider) Config {
	c.TTSProvider = p
	return c
}

// WithResponseTimeout returns a copy with the answer deadline set.
func (c Config) WithResponseTimeout(d time.Duration) Config {
	c.ResponseTimeout = d
	return c
}

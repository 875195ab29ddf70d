// Package config provides environment helpers for go-voiceagent commands.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names read by the commands.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvPersona       = "AGENT_PERSONA"
	EnvAddr          = "AGENT_ADDR"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLLMModel      = "LLM_MODEL"
	EnvResponseLimit = "AGENT_RESPONSE_TIMEOUT"
	EnvTTSSpeed      = "TTS_SPEED"
)

// LoadDotEnv loads variables from the given files (".env" when none are given).
// Variables already present in the environment win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// String returns the env var or fallback when unset or empty.
func String(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// Float returns the env var parsed as a float, or fallback.
func Float(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// Duration returns the env var parsed with time.ParseDuration, or fallback.
func Duration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Required returns the env var or a *MissingError when it is unset.
func Required(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", &MissingError{Name: name}
	}
	return v, nil
}

// MissingError reports a required environment variable that is not set.
type MissingError struct {
	Name string
}

func (e *MissingError) Error() string {
	return e.Name + " environment variable is required"
}

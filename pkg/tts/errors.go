package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey            = errors.New("tts: API key required")
	ErrNoVoiceID           = errors.New("tts: voice ID required")
	ErrStreamClosed        = errors.New("tts: stream closed")
	ErrProviderUnavailable = errors.New("tts: no providers available")
	ErrInvalidSpeed        = fmt.Errorf("tts: speed must be between %.2f and %.1f", MinSpeed, MaxSpeed)

	// ErrSpeechInProgress is returned by Speak while an earlier call on the
	// same adapter is still running.
	ErrSpeechInProgress = errors.New("tts: speech already in progress")
)

// APIError is a non-2xx response from the speech endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("tts %s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tts %s: status %d %s: %s", e.Provider, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) IsRateLimited() bool  { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsServerError() bool  { return e.StatusCode/100 == 5 }
func (e *APIError) IsRetryable() bool    { return e.IsRateLimited() || e.IsServerError() }

// ProviderError tags a transport or decode failure with its provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return "tts " + e.Provider + ": " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// SinkError is a failure delivering audio to the runtime. The agent treats
// it as a lost connection rather than a synthesis failure.
type SinkError struct {
	Op  string // begin, write or end
	Err error
}

func (e *SinkError) Error() string { return "tts sink " + e.Op + ": " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }

// IsSinkError reports whether err came from the AudioSink.
func IsSinkError(err error) bool {
	var se *SinkError
	return errors.As(err, &se)
}

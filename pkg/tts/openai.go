package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceagent/internal/httpc"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI synthesizes speech with the /audio/speech endpoint. Stream hands
// back the response body while it is still arriving, so the first chunk is
// playable long before the sentence is fully rendered.
type OpenAI struct {
	config  *Config
	client  *http.Client
	stream  *http.Client
	logger  *slog.Logger
	baseURL string
}

func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		stream:  httpc.NewClient(cfg.StreamTimeout),
		logger:  cfg.Logger.With("component", "tts.openai", "voice", cfg.VoiceID),
		baseURL: baseURL,
	}, nil
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()
	resp, err := o.speech(ctx, o.client, text)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}

	format := o.format()
	result := &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if format.Encoding == EncodingPCM24 {
		result.Duration = PCMDuration(len(audio), format.SampleRate)
	}
	o.logger.Debug("synthesized", "chars", len(text), "bytes", len(audio), "latency_ms", result.LatencyMs)
	return result, nil
}

func (o *OpenAI) Stream(ctx context.Context, text string) (AudioStream, error) {
	resp, err := o.speech(ctx, o.stream, text)
	if err != nil {
		return nil, err
	}
	return newChunkStream(resp.Body, o.format()), nil
}

func (o *OpenAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return WrapError(providerOpenAI, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	o.stream.CloseIdleConnections()
	return nil
}

func (o *OpenAI) VoiceID() string { return o.config.VoiceID }

type speechRequest struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
	Instructions   string  `json:"instructions,omitempty"`
}

func (o *OpenAI) body(text string) speechRequest {
	r := speechRequest{
		Model:          o.config.ModelID,
		Voice:          o.config.VoiceID,
		Input:          text,
		ResponseFormat: responseFormat(o.config.OutputFormat),
	}
	if o.config.Speed != 1.0 {
		r.Speed = o.config.Speed
	}
	if SupportsInstructions(o.config.ModelID) {
		r.Instructions = o.config.Instructions
	}
	return r
}

// speech posts text and returns the 200 response. 429, 5xx and transport
// errors are retried; nothing is retried once a body has been handed out.
func (o *OpenAI) speech(ctx context.Context, hc *http.Client, text string) (*http.Response, error) {
	data, err := json.Marshal(o.body(text))
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal request: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(data))
		if err != nil {
			return nil, WrapError(providerOpenAI, err)
		}
		req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(providerOpenAI, err)
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		default:
			lastErr = apiError(resp)
			resp.Body.Close()
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && !apiErr.IsRetryable() {
				return nil, lastErr
			}
		}
		o.logger.Warn("speech request failed", "attempt", attempt+1, "error", lastErr)
	}
	return nil, lastErr
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerOpenAI}

	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		e.Message = parsed.Error.Message
		e.Code = parsed.Error.Code
	}
	return e
}

func (o *OpenAI) format() AudioFormat {
	switch o.config.OutputFormat {
	case EncodingPCM24, "":
		return PCM24
	default:
		return AudioFormat{
			Encoding:   o.config.OutputFormat,
			SampleRate: SampleRateFromEncoding(o.config.OutputFormat),
			Channels:   1,
		}
	}
}

func responseFormat(enc Encoding) string {
	switch enc {
	case EncodingMP3:
		return "mp3"
	case EncodingOpus:
		return "opus"
	case EncodingWAV:
		return "wav"
	default:
		return "pcm"
	}
}

var _ Provider = (*OpenAI)(nil)

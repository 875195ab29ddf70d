package inference

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

const providerClient = "client"

// Client talks to any OpenAI-compatible chat-completions endpoint over plain
// HTTP and SSE. It is the provider for local servers (Ollama, vLLM) and the
// usual fallback behind the SDK-backed OpenAI provider.
type Client struct {
	baseURL string
	config  *Config
	http    *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

func NewClient(opts ...Option) (*Client, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		stream:  httpc.NewClient(cfg.StreamTimeout),
		logger:  cfg.Logger.With("component", "inference.client"),
	}, nil
}

func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyConversation
	}
	start := time.Now()

	resp, err := c.post(ctx, c.http, c.request(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return nil, WrapError(providerClient, fmt.Errorf("no choices returned"))
	}
	choice := out.Choices[0]

	return &ChatResponse{
		Message:      NewAssistantMessage(choice.Message.Content, fromWireCalls(choice.Message.ToolCalls)...),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
		Model:     out.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *Client) Capabilities() Capabilities {
	return Capabilities{Chat: true, Vision: true, Streaming: true, Tools: true}
}

// Health lists models, which checks both reachability and the API key.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return WrapError(providerClient, err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(providerClient, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	c.stream.CloseIdleConnections()
	return nil
}

// request fills model and sampling defaults from the Config.
func (c *Client) request(req *ChatRequest, stream bool) *wireRequest {
	w := &wireRequest{
		Model:       req.Model,
		Messages:    toWire(req.Messages),
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       toWireTools(req.Tools),
		ToolChoice:  req.ToolChoice,
	}
	if w.Model == "" {
		w.Model = c.config.Model
	}
	if w.MaxTokens == 0 {
		w.MaxTokens = c.config.MaxTokens
	}
	if w.Temperature == 0 {
		w.Temperature = c.config.Temperature
	}
	return w
}

func (c *Client) authorize(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

// post sends body to /chat/completions. Transport errors, 429 and 5xx are
// retried with a linear backoff; any other non-200 status is returned as an
// *APIError. The caller owns the body of a successful response.
func (c *Client) post(ctx context.Context, hc *http.Client, body *wireRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, WrapError(providerClient, fmt.Errorf("marshal request: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
		if err != nil {
			return nil, WrapError(providerClient, err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := hc.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(providerClient, err)
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
		c.logger.Warn("chat request failed", "attempt", attempt+1, "error", lastErr)
	}
	return nil, lastErr
}

// apiError builds an *APIError from a failed response, preferring the
// structured error body when the server sends one.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &APIError{StatusCode: resp.StatusCode, Message: string(body), Provider: providerClient}

	var we wireError
	if json.Unmarshal(body, &we) == nil && we.Error.Message != "" {
		e.Message = we.Error.Message
		e.Code = we.Error.Code
	}
	return e
}

var _ Provider = (*Client)(nil)

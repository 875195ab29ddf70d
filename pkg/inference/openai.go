package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/teslashibe/go-voiceagent/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI is a Provider backed by the official openai-go SDK.
// It is the default for the voice personas; Client covers servers the SDK
// does not handle well.
type OpenAI struct {
	client openai.Client
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates an SDK-backed provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	options := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHTTPClient(httpc.NewClient(0)),
	}
	if cfg.APIKey != "" {
		options = append(options, option.WithAPIKey(cfg.APIKey))
	}

	return &OpenAI{
		client: openai.NewClient(options...),
		config: cfg,
		logger: cfg.Logger.With("component", "inference.openai"),
	}, nil
}

// Chat generates a complete response.
func (o *OpenAI) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyConversation
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	completion, err := o.client.Chat.Completions.New(ctx, o.params(req))
	if err != nil {
		return nil, o.wrap(err)
	}
	if len(completion.Choices) == 0 {
		return nil, WrapError(providerOpenAI, fmt.Errorf("no choices returned"))
	}

	choice := completion.Choices[0]
	calls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	return &ChatResponse{
		Message:      NewAssistantMessage(choice.Message.Content, calls...),
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
		Model:     completion.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Stream opens a streaming completion.
func (o *OpenAI) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyConversation
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.StreamTimeout)
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(req))
	if err := stream.Err(); err != nil {
		cancel()
		return nil, o.wrap(err)
	}

	return &openAIStream{
		stream: stream,
		cancel: cancel,
		wrap:   o.wrap,
	}, nil
}

// Capabilities returns what this provider supports.
func (o *OpenAI) Capabilities() Capabilities {
	return Capabilities{
		Chat:      true,
		Vision:    true,
		Streaming: true,
		Tools:     true,
	}
}

// Health lists models to verify the key.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return o.wrap(err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no long-lived resources.
func (o *OpenAI) Close() error {
	return nil
}

func (o *OpenAI) params(req *ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    o.config.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Model != "" {
		params.Model = req.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	temp := req.Temperature
	if temp == 0 {
		temp = o.config.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.Parameters),
				},
			},
		})
	}
	if req.ToolChoice != "" {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(req.ToolChoice),
		}
	}

	return params
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(m.Content)}
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURL(),
				}))
			}
			out = append(out, openai.UserMessage(parts))
		case RoleAssistant:
			msg := openai.AssistantMessage(m.Content)
			for _, tc := range m.ToolCalls {
				msg.OfAssistant.ToolCalls = append(msg.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, msg)
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func (o *OpenAI) wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, err)
}

// openAIStream adapts the SDK's SSE stream, folding chunks through the
// SDK accumulator so tool calls arrive whole on the final chunk.
type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	acc    openai.ChatCompletionAccumulator
	cancel context.CancelFunc
	wrap   func(error) error

	done      bool
	closed    bool
	mu        sync.Mutex
	closeOnce sync.Once
}

// Recv returns the next chunk.
func (s *openAIStream) Recv() (*StreamChunk, error) {
	if s.done {
		return &StreamChunk{Done: true}, nil
	}

	for s.stream.Next() {
		chunk := s.stream.Current()
		s.acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return &StreamChunk{Delta: chunk.Choices[0].Delta.Content}, nil
		}
	}

	if err := s.stream.Err(); err != nil {
		if s.isClosed() {
			return nil, ErrStreamClosed
		}
		return nil, s.wrap(err)
	}
	if s.isClosed() {
		return nil, ErrStreamClosed
	}

	s.done = true
	final := &StreamChunk{FinishReason: "stop", Done: true}
	if len(s.acc.Choices) > 0 {
		choice := s.acc.Choices[0]
		if choice.FinishReason != "" {
			final.FinishReason = string(choice.FinishReason)
		}
		for _, tc := range choice.Message.ToolCalls {
			final.ToolCalls = append(final.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return final, nil
}

func (s *openAIStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels the request, which unblocks a pending Recv.
func (s *openAIStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.stream.Close()
	})
	return err
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)

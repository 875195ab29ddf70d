// Package inference provides the language-model side of a voice session.
//
// A Provider turns the running conversation into a stream of response
// tokens. Implementations speak the OpenAI chat-completions protocol, either
// through the official SDK (OpenAI) or over plain HTTP + SSE (Client) so
// that compatible servers such as Ollama or vLLM work too.
//
// Example usage:
//
//	llm, _ := inference.NewOpenAI(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-4o"),
//	)
//	defer llm.Close()
//
//	stream, _ := llm.Stream(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewSystemMessage("You are John."),
//	        inference.NewUserMessage("Hello!"),
//	    },
//	})
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Recv()
//	    if err != nil || chunk.Done {
//	        break
//	    }
//	    fmt.Print(chunk.Delta)
//	}
package inference

import (
	"context"
)

// Provider is a chat model. The orchestrator only calls Stream during a
// turn; Chat and Health are used for checks at startup.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Stream(ctx context.Context, req *ChatRequest) (Stream, error)
	Capabilities() Capabilities
	Health(ctx context.Context) error
	Close() error
}

// Stream yields the answer as it is generated. A chunk with Done set is the
// last one. Close must unblock a pending Recv so that barge-in can abandon
// a response immediately.
type Stream interface {
	Recv() (*StreamChunk, error)
	Close() error
}

type StreamChunk struct {
	Delta        string
	FinishReason string     // stop, length or tool_calls
	ToolCalls    []ToolCall // assembled, final chunk only
	Done         bool
}

type Capabilities struct {
	Chat      bool
	Vision    bool // accepts image parts in user messages
	Streaming bool
	Tools     bool
}

// ChatRequest carries the full context for one model call. Zero MaxTokens
// and Temperature fall back to the provider Config.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	Tools       []Tool
	ToolChoice  string // auto, none or required
}

type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string
	LatencyMs    int64
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Collect drains a stream and returns the concatenated text and tool calls.
// It closes the stream.
func Collect(s Stream) (string, []ToolCall, error) {
	defer s.Close()

	var text []byte
	for {
		chunk, err := s.Recv()
		if err != nil {
			return string(text), nil, err
		}
		text = append(text, chunk.Delta...)
		if chunk.Done {
			return string(text), chunk.ToolCalls, nil
		}
	}
}

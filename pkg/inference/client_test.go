package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "test-id",
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "Hello! How can I help?"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	client, err := NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("Hello")},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Message.Content != "Hello! How can I help?" {
		t.Errorf("Unexpected content: %s", resp.Message.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish_reason 'stop', got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestClientMultimodalPayload(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices": [{"message": {"content": "a mug"}, "finish_reason": "stop"}]}`)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			NewSystemMessage("You are Sara."),
			NewUserMessage("what is this?", Image{Data: []byte{0xff, 0xd8}}),
		},
		Tools: []Tool{{Name: "image", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	msgs := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if sys := msgs[0].(map[string]any); sys["content"] != "You are Sara." {
		t.Errorf("System content should stay a plain string, got %v", sys["content"])
	}

	parts, ok := msgs[1].(map[string]any)["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected 2 content parts, got %v", msgs[1])
	}
	text := parts[0].(map[string]any)
	if text["type"] != "text" || text["text"] != "what is this?" {
		t.Errorf("Unexpected text part: %v", text)
	}
	img := parts[1].(map[string]any)
	url := img["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("Unexpected image url: %s", url)
	}

	tools := got["tools"].([]any)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "image" {
		t.Errorf("Expected tool 'image', got %v", fn["name"])
	}
	if got["model"] != "gpt-4o" {
		t.Errorf("Expected default model gpt-4o, got %v", got["model"])
	}
}

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
}

func TestClientStream(t *testing.T) {
	server := sseServer(t,
		`{"choices":[{"delta":{"role":"assistant","content":""}}]}`,
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" there."}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	)
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	stream, err := client.Stream(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var deltas []string
	for {
		chunk, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if chunk.Delta != "" {
			deltas = append(deltas, chunk.Delta)
		}
		if chunk.Done {
			if chunk.FinishReason != "stop" {
				t.Errorf("Expected finish reason stop, got %q", chunk.FinishReason)
			}
			break
		}
	}
	stream.Close()

	if strings.Join(deltas, "") != "Hello there." {
		t.Errorf("Unexpected text: %q", strings.Join(deltas, ""))
	}
	if len(deltas) != 2 {
		t.Errorf("Expected 2 deltas, got %d", len(deltas))
	}
}

func TestClientStreamToolCalls(t *testing.T) {
	server := sseServer(t,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"image","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"user_msg\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"what is this\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	)
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	stream, err := client.Stream(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("what is this")},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	text, calls, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected no text, got %q", text)
	}
	if len(calls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "image" {
		t.Errorf("Unexpected call: %+v", calls[0])
	}
	if calls[0].Arguments != `{"user_msg":"what is this"}` {
		t.Errorf("Unexpected arguments: %s", calls[0].Arguments)
	}
}

func TestClientStreamClose(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	stream, err := client.Stream(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if chunk, err := stream.Recv(); err != nil || chunk.Delta != "Hi" {
		t.Fatalf("Expected first delta, got %v %v", chunk, err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := stream.Recv()
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	stream.Close()

	select {
	case err := <-errc:
		if err == nil {
			t.Error("Expected error after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected /models, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"data": []}`)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestClientError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error": {"message": "nope", "code": "bad"}}`)
			}))
			defer server.Close()

			client, _ := NewClient(
				WithBaseURL(server.URL),
				WithRetry(1, time.Millisecond),
			)
			defer client.Close()

			_, err := client.Chat(context.Background(), &ChatRequest{
				Messages: []Message{NewUserMessage("Hello")},
			})

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if apiErr.Message != "nope" || apiErr.Code != "bad" {
				t.Errorf("Unexpected error body: %+v", apiErr)
			}
			if apiErr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", apiErr.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestClientEmptyConversation(t *testing.T) {
	client, _ := NewClient(WithBaseURL("http://127.0.0.1:1"))
	defer client.Close()

	if _, err := client.Stream(context.Background(), &ChatRequest{}); !errors.Is(err, ErrEmptyConversation) {
		t.Errorf("Expected ErrEmptyConversation, got %v", err)
	}
}

func TestClientNoModel(t *testing.T) {
	if _, err := NewClient(WithModel("")); !errors.Is(err, ErrNoModel) {
		t.Errorf("Expected ErrNoModel, got %v", err)
	}
}

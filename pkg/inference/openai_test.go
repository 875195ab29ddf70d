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
)

func TestOpenAIStream(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range []string{
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"It is "}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"a mug."}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`[DONE]`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}))
	defer server.Close()

	llm, err := NewOpenAI(WithBaseURL(server.URL+"/v1/"), WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	defer llm.Close()

	stream, err := llm.Stream(context.Background(), &ChatRequest{
		Messages: []Message{
			NewSystemMessage("You are Sara."),
			NewUserMessage("what is this?", Image{Data: []byte{1, 2, 3}}),
		},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	text, calls, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if text != "It is a mug." {
		t.Errorf("Unexpected text %q", text)
	}
	if len(calls) != 0 {
		t.Errorf("Expected no tool calls, got %d", len(calls))
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages in request, got %d", len(msgs))
	}
	if _, ok := msgs[1].(map[string]any)["content"].([]any); !ok {
		t.Error("Expected user message with image to use content parts")
	}
}

func TestOpenAIStreamToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range []string{
			`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"image","arguments":""}}]}}]}`,
			`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"user_msg\":\"look\"}"}}]}}]}`,
			`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`[DONE]`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
	}))
	defer server.Close()

	llm, _ := NewOpenAI(WithBaseURL(server.URL + "/v1/"))
	stream, err := llm.Stream(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("look")},
		Tools:    []Tool{{Name: "image", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	_, calls, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID != "call_9" || calls[0].Name != "image" || calls[0].Arguments != `{"user_msg":"look"}` {
		t.Errorf("Unexpected call %+v", calls[0])
	}
}

func TestOpenAIUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer server.Close()

	llm, _ := NewOpenAI(WithBaseURL(server.URL+"/v1/"), WithRetry(0, 0))
	_, err := llm.Stream(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("Expected 401, got %d", apiErr.StatusCode)
	}
}

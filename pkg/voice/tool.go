package voice

import (
	"encoding/json"
	"fmt"

	"github.com/teslashibe/go-voiceagent/pkg/inference"
)

// ImageToolName is the function the model calls to look at the camera.
const ImageToolName = "image"

// Tool represents a function that the model can invoke during conversation.
type Tool struct {
	// Name is the unique identifier for the tool (e.g., "image").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters defines the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`

	// Handler is called when the model invokes this tool. The result is
	// logged; the agent does not feed it back to the model.
	Handler func(args map[string]any) (string, error) `json:"-"`
}

// ToolCall represents an invocation of a tool by the model.
type ToolCall struct {
	// ID is the unique identifier for this tool call.
	ID string

	// Name is the tool being invoked.
	Name string

	// Arguments contains the parsed arguments from the model.
	Arguments map[string]any
}

// ToolResult represents the result of a tool invocation.
type ToolResult struct {
	CallID string
	Result string
	Error  error
}

// ImageTool returns the camera tool. It only declares the call; handling
// happens in the agent once the call completes.
func ImageTool() Tool {
	return Tool{
		Name:        ImageToolName,
		Description: "Triggered when the assistant needs to evaluate an image (e.g., webcam, visual content).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_msg": map[string]any{
					"type":        "string",
					"description": "The user message that triggered this function",
				},
			},
			"required": []string{"user_msg"},
		},
	}
}

// InferenceTools converts tools to model tool definitions.
func InferenceTools(tools []Tool) []inference.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]inference.Tool, len(tools))
	for i, t := range tools {
		out[i] = inference.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return out
}

// ParseToolCall decodes a model tool call's JSON arguments.
func ParseToolCall(tc inference.ToolCall) (ToolCall, error) {
	call := ToolCall{ID: tc.ID, Name: tc.Name, Arguments: map[string]any{}}
	if tc.Arguments == "" {
		return call, nil
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &call.Arguments); err != nil {
		return call, fmt.Errorf("voice: tool %s arguments: %w", tc.Name, err)
	}
	return call, nil
}

// StringArg returns a string argument, or "" when missing or not a string.
func (c ToolCall) StringArg(name string) string {
	s, _ := c.Arguments[name].(string)
	return s
}

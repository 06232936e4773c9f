// Package llm implements the OpenAI-shaped chat interface Clickweave
// consumes from both the agent backend and the optional VLM/supervision
// backends (spec §6).
package llm

import "context"

// ImageContentType tags an image part's encoding.
const ImageContentType = "image_url"

// ContentPart is one element of a multi-part message, used when a message
// carries both text and images.
type ContentPart struct {
	Type     string `json:"type"` // "text" | "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // data: URL or remote URL
}

// Message is one turn of the conversation. Content may be a plain string
// (Parts is nil) or a parts array (Parts is non-nil); exactly one is used
// depending on whether images are attached.
type Message struct {
	Role       string        `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"-"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// HasImagePart reports whether any content part of this message is an
// image. This is the primitive the no-images-to-agent property test
// (spec §8 item 1) checks across an entire message list.
func (m Message) HasImagePart() bool {
	for _, p := range m.Parts {
		if p.Type == ImageContentType {
			return true
		}
	}
	return false
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolFunctionSchema is the JSON schema for one callable function.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolDefinition describes one tool available to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// Usage tracks token consumption for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest is the input to a Chat call.
type ChatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

// ChatResponse is the result of a Chat call.
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        *Usage     `json:"usage,omitempty"`
}

// ModelInfo is the metadata an optional GET /models lookup returns.
type ModelInfo struct {
	ID            string `json:"id"`
	ContextLength int    `json:"context_length,omitempty"`
	Quantization  string `json:"quantization,omitempty"`
	Owner         string `json:"owned_by,omitempty"`
}

// Provider is the interface every reasoning backend (agent, VLM,
// supervision) implements — all three are simply Providers used for
// different roles.
type Provider interface {
	// Chat sends a non-streaming chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelInfo fetches model metadata via GET /models. Failure is
	// non-fatal: callers log and continue (spec §6).
	ModelInfo(ctx context.Context) (*ModelInfo, error)

	// DefaultModel returns this provider's configured model name.
	DefaultModel() string

	// Name identifies the backend for logging (e.g. "agent", "vlm").
	Name() string
}

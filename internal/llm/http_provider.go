package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider consumes an OpenAI-shaped POST /chat/completions endpoint
// and optional GET /models. One instance is created per backend role
// (agent, VLM, supervision); they never share mutable state.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Option configures an HTTPProvider.
type Option func(*HTTPProvider)

// WithHTTPClient overrides the default http.Client (timeouts, transport).
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPProvider) { p.httpClient = c }
}

// NewHTTPProvider constructs a provider bound to role name (used only for
// logging), baseURL, apiKey (sent as a bearer token; never logged or
// serialized), and the default model.
func NewHTTPProvider(name, baseURL, apiKey, model string, opts ...Option) *HTTPProvider {
	p := &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPProvider) Name() string         { return p.name }
func (p *HTTPProvider) DefaultModel() string { return p.model }

type wireContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type wireMessage struct {
	Role       string      `json:"role"`
	Content    interface{} `json:"content"` // string or []wireContentPart
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireChatRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

type wireChoice struct {
	Message struct {
		Content   string         `json:"content"`
		ToolCalls []wireToolCall `json:"tool_calls"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type wireChatResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

func toWireMessage(m Message) wireMessage {
	wm := wireMessage{Role: m.Role, ToolCallID: m.ToolCallID}
	if len(m.Parts) > 0 {
		parts := make([]wireContentPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			wp := wireContentPart{Type: p.Type, Text: p.Text}
			if p.Type == ImageContentType && p.ImageURL != "" {
				wp.ImageURL = &struct {
					URL string `json:"url"`
				}{URL: p.ImageURL}
			}
			parts = append(parts, wp)
		}
		wm.Content = parts
	} else {
		wm.Content = m.Content
	}
	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		wtc := wireToolCall{ID: tc.ID, Type: "function"}
		wtc.Function.Name = tc.Name
		wtc.Function.Arguments = string(args)
		wm.ToolCalls = append(wm.ToolCalls, wtc)
	}
	return wm
}

// Chat sends a POST /chat/completions request and parses tool calls and
// finish reason from the first choice.
func (p *HTTPProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	wireMsgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		wireMsgs = append(wireMsgs, toWireMessage(m))
	}
	wireReq := wireChatRequest{
		Model:       model,
		Messages:    wireMsgs,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal chat request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: chat request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read chat response: %w", p.name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: chat request returned %d: %s", p.name, resp.StatusCode, string(respBody))
	}

	var wireResp wireChatResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, fmt.Errorf("%s: parse chat response: %w", p.name, err)
	}
	if len(wireResp.Choices) == 0 {
		return nil, fmt.Errorf("%s: chat response had no choices", p.name)
	}
	choice := wireResp.Choices[0]

	out := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        wireResp.Usage,
	}
	for _, wtc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		_ = json.Unmarshal([]byte(wtc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: wtc.ID, Name: wtc.Function.Name, Arguments: args})
	}
	return out, nil
}

// ModelInfo queries GET /models for metadata and returns the entry whose id
// matches the configured model, or the first entry when none matches.
// Failure is logged and otherwise ignored, per spec §6.
func (p *HTTPProvider) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		slog.Warn("llm.model_info.build_request_failed", "provider", p.name, "error", err)
		return nil, nil
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		slog.Warn("llm.model_info.request_failed", "provider", p.name, "error", err)
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Warn("llm.model_info.bad_status", "provider", p.name, "status", resp.StatusCode)
		return nil, nil
	}

	var listing struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		slog.Warn("llm.model_info.parse_failed", "provider", p.name, "error", err)
		return nil, nil
	}
	for _, m := range listing.Data {
		if m.ID == p.model {
			return &m, nil
		}
	}
	if len(listing.Data) > 0 {
		return &listing.Data[0], nil
	}
	return nil, nil
}

// Package mcpclient wraps github.com/mark3labs/mcp-go's stdio client with
// the thin subset of MCP the core consumes: initialize, tools/list,
// tools/call (spec §6). Transport spawn/teardown is owned by the run loop.
package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpsdk "github.com/mark3labs/mcp-go/client"
	"golang.org/x/time/rate"
)

// ContentBlockKind tags a tool-result content block.
type ContentBlockKind string

const (
	ContentText  ContentBlockKind = "text"
	ContentImage ContentBlockKind = "image"
)

// ContentBlock is one element of a tools/call result. Unknown block kinds
// encountered on the wire are skipped by CallTool (spec §6).
type ContentBlock struct {
	Kind     ContentBlockKind
	Text     string
	Data     string // base64, when Kind == ContentImage
	MimeType string
}

// CommandDescriptor is the MCP-command descriptor the run loop is given:
// how to spawn the child process that speaks MCP over stdio.
type CommandDescriptor struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Client is a thin wrapper over the mcp-go stdio client, rate-limited so a
// runaway agentic loop cannot flood a slow MCP server with tools/call
// traffic.
type Client struct {
	raw     *mcpsdk.Client
	limiter *rate.Limiter
}

// Dial spawns the MCP server child process and performs the initialize
// handshake (protocol version 2024-11-05) plus notifications/initialized.
func Dial(ctx context.Context, desc CommandDescriptor) (*Client, error) {
	env := make([]string, 0, len(desc.Env))
	for k, v := range desc.Env {
		env = append(env, k+"="+v)
	}

	raw, err := mcpsdk.NewStdioMCPClient(desc.Command, env, desc.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: spawn %s: %w", desc.Command, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "clickweave", Version: "1.0.0"}

	if _, err := raw.Initialize(ctx, initReq); err != nil {
		raw.Close()
		return nil, fmt.Errorf("mcpclient: initialize handshake: %w", err)
	}

	return &Client{
		raw:     raw,
		limiter: rate.NewLimiter(rate.Limit(20), 5), // 20/s sustained, burst 5
	}, nil
}

// Close terminates the child process.
func (c *Client) Close() error {
	return c.raw.Close()
}

// ToolSchema is one entry from tools/list, already shaped for the LLM
// ToolDefinition the agent backend consumes.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ListTools calls tools/list and returns the available tool schemas.
func (c *Client) ListTools(ctx context.Context) ([]ToolSchema, error) {
	res, err := c.raw.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpclient: tools/list: %w", err)
	}
	out := make([]ToolSchema, 0, len(res.Tools))
	for _, t := range res.Tools {
		params := map[string]interface{}{
			"type":       "object",
			"properties": t.InputSchema.Properties,
			"required":   t.InputSchema.Required,
		}
		out = append(out, ToolSchema{Name: t.Name, Description: t.Description, Parameters: params})
	}
	return out, nil
}

// CallTool invokes a named tool with JSON-decoded arguments and returns the
// parsed content blocks, skipping any block kind the core doesn't
// recognize.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) ([]ContentBlock, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("mcpclient: rate limiter: %w", err)
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	start := time.Now()
	res, err := c.raw.CallTool(ctx, req)
	slog.Debug("mcpclient.tool_call", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("mcpclient: tools/call %s: %w", name, err)
	}

	blocks := make([]ContentBlock, 0, len(res.Content))
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcpgo.TextContent:
			blocks = append(blocks, ContentBlock{Kind: ContentText, Text: tc.Text})
		case mcpgo.ImageContent:
			blocks = append(blocks, ContentBlock{Kind: ContentImage, Data: tc.Data, MimeType: tc.MIMEType})
		default:
			slog.Debug("mcpclient.unknown_content_block", "tool", name)
		}
	}
	if res.IsError {
		return blocks, fmt.Errorf("mcpclient: tool %s returned an error result", name)
	}
	return blocks, nil
}

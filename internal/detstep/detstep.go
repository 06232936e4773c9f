// Package detstep executes the deterministic (non-AiStep) node kinds: maps
// a node to an MCP tool invocation, resolves relative image/template paths
// against the project directory, calls the tool, and records trace events
// and screenshot artifacts. Symbolic target resolution (app names, element
// names, click disambiguation) happens upstream in internal/runloop before
// a node ever reaches this package.
package detstep

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/clickweave-dev/clickweave/internal/mcpclient"
	"github.com/clickweave-dev/clickweave/internal/toolmap"
	"github.com/clickweave-dev/clickweave/internal/trace"
	"github.com/clickweave-dev/clickweave/internal/workflow"
)

// pathArgKeys are the argument keys whose string values are resolved
// against the project directory when relative.
var pathArgKeys = []string{"image_path", "imagePath", "path", "file", "template_path"}

// ToolCaller is the narrow MCP surface the deterministic step needs.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error)
}

// Result is what one deterministic step produced.
type Result struct {
	ToolName  string
	ResultText string
	Images    []mcpclient.ContentBlock
}

// Executor runs deterministic steps against one MCP connection.
type Executor struct {
	Tools       ToolCaller
	ProjectPath string // empty if no project is open; paths are left as-is

	// Logger receives human-readable progress lines; nil-safe.
	Logger func(string)
}

func (e *Executor) log(msg string) {
	if e.Logger != nil {
		e.Logger(msg)
	}
}

// ErrNotDeterministic is returned for node kinds this package does not
// execute (AiStep belongs to internal/agentstep).
var ErrNotDeterministic = fmt.Errorf("detstep: node is not a deterministic step")

// Execute runs one node's tool invocation (or no-op, for AppDebugKitOp),
// recording tool_call/tool_result trace events on run when non-nil.
func (e *Executor) Execute(ctx context.Context, n workflow.Node, run *trace.NodeRun, store *trace.Store) (Result, error) {
	if n.Kind == workflow.KindAppDebugKitOp {
		e.log(fmt.Sprintf("AppDebugKit operation: %s (not yet fully implemented)", n.Name))
		return Result{}, nil
	}
	if n.Kind == workflow.KindAiStep {
		return Result{}, ErrNotDeterministic
	}

	invocation, err := toolmap.Forward(n)
	if err != nil {
		return Result{}, fmt.Errorf("detstep: tool mapping for node %q: %w", n.ID, err)
	}
	if n.Kind == workflow.KindMcpToolCall && invocation.ToolName == "" {
		return Result{}, fmt.Errorf("detstep: McpToolCall node %q has empty tool_name", n.ID)
	}

	if store != nil && run != nil {
		store.AppendEvent(run, "tool_call", map[string]interface{}{"name": invocation.ToolName})
	}
	e.log(fmt.Sprintf("Calling MCP tool: %s", invocation.ToolName))

	args := e.resolveImagePaths(invocation.Arguments)
	blocks, err := e.Tools.CallTool(ctx, invocation.ToolName, args)
	if err != nil {
		return Result{}, fmt.Errorf("detstep: MCP tool %s failed: %w", invocation.ToolName, err)
	}

	images := mcpclient.Images(blocks)
	if store != nil && run != nil {
		e.saveResultImages(store, run, images, "result")
	}
	resultText := mcpclient.JoinText(blocks)

	if store != nil && run != nil {
		store.AppendEvent(run, "tool_result", map[string]interface{}{
			"name":        invocation.ToolName,
			"text_len":    len(resultText),
			"image_count": len(images),
		})
	}
	e.log(fmt.Sprintf("Tool result: %d chars, %d images", len(resultText), len(images)))

	return Result{ToolName: invocation.ToolName, ResultText: resultText, Images: images}, nil
}

// resolveImagePaths rewrites any of pathArgKeys in args to an absolute path
// under ProjectPath, when the value is relative and ProjectPath is set.
func (e *Executor) resolveImagePaths(args map[string]interface{}) map[string]interface{} {
	if args == nil || e.ProjectPath == "" {
		return args
	}
	for _, key := range pathArgKeys {
		raw, ok := args[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok || strings.HasPrefix(s, "/") {
			continue
		}
		args[key] = filepath.Join(e.ProjectPath, s)
	}
	return args
}

// saveResultImages base64-decodes each image content block and writes it as
// a trace artifact, honoring the run's trace level.
func (e *Executor) saveResultImages(store *trace.Store, run *trace.NodeRun, images []mcpclient.ContentBlock, prefix string) {
	for idx, img := range images {
		ext := "jpg"
		if strings.Contains(img.MimeType, "png") {
			ext = "png"
		}
		filename := fmt.Sprintf("%s_%d.%s", prefix, idx, ext)
		decoded, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			continue
		}
		store.SaveArtifact(run, "Screenshot", filename, decoded, nil)
	}
}

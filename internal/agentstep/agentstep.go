// Package agentstep implements the Agentic Step (AiStep): a bounded
// multi-turn dialogue between the agent LLM and MCP tools, with VLM vision
// bridging so the agent itself never receives raw image parts (spec §4.3).
package agentstep

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clickweave-dev/clickweave/internal/llm"
	"github.com/clickweave-dev/clickweave/internal/mcpclient"
	"github.com/clickweave-dev/clickweave/internal/obs"
	"github.com/clickweave-dev/clickweave/internal/trace"
	"github.com/clickweave-dev/clickweave/internal/workflow"
)

const workflowSystemPrompt = `You are a UI automation assistant. You execute workflow steps by using the available tools.

For each step, you will receive:
- A prompt describing what action to take
- Optional button_text: text to find and click
- Optional image_path: path to an image to find on screen

Use the MCP tools to:
1. Take screenshots to see the current state
2. Find text or images on screen
3. Click, type, or scroll as needed

When you have completed the step's objective, respond with a JSON object:
{"step_complete": true, "summary": "Brief description of what was done"}

If you encounter an error or cannot complete the step:
{"step_complete": false, "error": "Description of the problem"}

Be precise with coordinates and verify actions by taking screenshots.`

// buildStepPrompt composes the initial user message from the step's prompt
// plus optional button text / template image hints.
func buildStepPrompt(prompt, buttonText, templateImage string) string {
	out := prompt
	if buttonText != "" {
		out += fmt.Sprintf("\nButton to find: %q", buttonText)
	}
	if templateImage != "" {
		out += fmt.Sprintf("\nImage to find: %s", templateImage)
	}
	return out
}

// ToolCaller is the narrow MCP surface the agentic step needs.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error)
}

// StopRequester reports whether the user has requested the run stop.
type StopRequester func() bool

// Executor drives one AiStep node's LLM-tool loop.
type Executor struct {
	Agent llm.Provider
	VLM   llm.Provider // optional; nil means images are embedded inline
	Tools ToolCaller

	ResolveImagePaths func(args map[string]interface{}) map[string]interface{}
	StopRequested     StopRequester

	// Logger receives human-readable progress lines; nil-safe.
	Logger func(string)

	// Obs exports one span per turn of the loop below when non-nil.
	Obs *obs.Tracer

	// Now is the clock used for timeout_ms accounting; swappable for tests.
	Now func() time.Time
}

func (e *Executor) tracer() *obs.Tracer {
	if e.Obs != nil {
		return e.Obs
	}
	return obs.Noop()
}

func (e *Executor) log(msg string) {
	if e.Logger != nil {
		e.Logger(msg)
	}
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ErrStopped is returned when the step exits because the user requested a
// stop mid-loop.
var ErrStopped = fmt.Errorf("agentstep: stopped by user")

// Result is the final outcome of one AiStep execution.
type Result struct {
	LastAssistantText string
	ToolCallCount      int
}

// Execute runs the bounded agent/tool loop for one AiStep node.
func (e *Executor) Execute(ctx context.Context, params workflow.AiStepParams, toolSchema []llm.ToolDefinition, run *trace.NodeRun, store *trace.Store) (Result, error) {
	messages := []llm.Message{
		{Role: "system", Content: workflowSystemPrompt},
		{Role: "user", Content: buildStepPrompt(params.Prompt, params.ButtonText, params.TemplateImage)},
	}

	filteredTools := toolSchema
	if params.AllowedTools != nil {
		filteredTools = filterTools(toolSchema, params.AllowedTools)
		e.log(fmt.Sprintf("Filtered tools: %d/%d allowed", len(filteredTools), len(toolSchema)))
	}

	maxToolCalls := 10
	if params.MaxToolCalls > 0 {
		maxToolCalls = params.MaxToolCalls
	}

	start := e.now()
	toolCallCount := 0
	lastAssistantText := ""
	turn := 0
	nodeID := ""
	if run != nil {
		nodeID = run.NodeID
	}

	for {
		if toolCallCount >= maxToolCalls {
			e.log("Max tool calls reached")
			break
		}
		if params.TimeoutMs != nil && e.now().Sub(start).Milliseconds() > int64(*params.TimeoutMs) {
			e.log("Timeout reached")
			break
		}
		if e.StopRequested != nil && e.StopRequested() {
			return Result{}, ErrStopped
		}

		turn++
		turnCtx, turnSpan := e.tracer().AgentTurnSpan(ctx, nodeID, turn)
		resp, err := e.Agent.Chat(turnCtx, llm.ChatRequest{Messages: messages, Tools: filteredTools})
		obs.EndWithError(turnSpan, err)
		if err != nil {
			return Result{}, fmt.Errorf("agentstep: LLM error: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			lastAssistantText = resp.Content
			if checkStepComplete(resp.Content) {
				e.log("Step completed")
			} else {
				e.log("Step finished")
			}
			break
		}

		messages = append(messages, llm.Message{Role: "assistant", ToolCalls: resp.ToolCalls})

		var pendingImages []mcpclient.ContentBlock
		lastImageTool := ""

		for _, call := range resp.ToolCalls {
			if e.StopRequested != nil && e.StopRequested() {
				return Result{}, ErrStopped
			}
			toolCallCount++
			e.log(fmt.Sprintf("Tool call: %s", call.Name))

			args := call.Arguments
			if e.ResolveImagePaths != nil {
				args = e.ResolveImagePaths(args)
			}

			if store != nil && run != nil {
				store.AppendEvent(run, "tool_call", map[string]interface{}{
					"name":  call.Name,
					"index": toolCallCount - 1,
					"args":  args,
				})
			}

			blocks, err := e.Tools.CallTool(ctx, call.Name, args)
			if err != nil {
				e.log(fmt.Sprintf("Tool call failed: %v", err))
				messages = append(messages, llm.Message{Role: "tool", ToolCallID: call.ID, Content: fmt.Sprintf("Error: %v", err)})
				continue
			}

			prefix := fmt.Sprintf("toolcall_%d", toolCallCount-1)
			images := mcpclient.Images(blocks)
			if len(images) > 0 {
				lastImageTool = call.Name
				if store != nil && run != nil {
					saveToolCallImages(store, run, images, prefix)
				}
			}
			pendingImages = append(pendingImages, images...)

			resultText := mcpclient.JoinText(blocks)
			e.log(fmt.Sprintf("Tool result: %d chars, %d images", len(resultText), len(pendingImages)))

			if store != nil && run != nil {
				store.AppendEvent(run, "tool_result", map[string]interface{}{
					"name":        call.Name,
					"text":        truncateForTrace(resultText, 8192),
					"text_len":    len(resultText),
					"image_count": len(pendingImages),
				})
			}

			messages = append(messages, llm.Message{Role: "tool", ToolCallID: call.ID, Content: resultText})
		}

		if len(pendingImages) > 0 {
			messages = e.bridgeImages(ctx, messages, params.Prompt, lastImageTool, pendingImages, run, store)
		}
	}

	return Result{LastAssistantText: lastAssistantText, ToolCallCount: toolCallCount}, nil
}

// bridgeImages routes tool-result images to the agent. With a VLM
// configured, the agent only ever sees a VLM_IMAGE_SUMMARY: text turn —
// never raw image parts (spec §4.3 item 7, spec §8 property 1).
func (e *Executor) bridgeImages(ctx context.Context, messages []llm.Message, stepPrompt, lastImageTool string, images []mcpclient.ContentBlock, run *trace.NodeRun, store *trace.Store) []llm.Message {
	if e.VLM == nil {
		parts := []llm.ContentPart{{Type: "text", Text: "Here are the images from the tool results above."}}
		for _, img := range images {
			parts = append(parts, llm.ContentPart{Type: llm.ImageContentType, ImageURL: "data:" + img.MimeType + ";base64," + img.Data})
		}
		return append(messages, llm.Message{Role: "user", Parts: parts})
	}

	e.log(fmt.Sprintf("Analyzing %d image(s) with VLM (%s)", len(images), e.VLM.DefaultModel()))
	summary, err := e.analyzeImages(ctx, stepPrompt, lastImageTool, images)
	if err != nil {
		e.log(fmt.Sprintf("VLM analysis failed: %v", err))
		return append(messages, llm.Message{
			Role:    "user",
			Content: "(Vision analysis failed; consider using find_text or find_image for precise targeting)",
		})
	}

	if store != nil && run != nil {
		store.AppendEvent(run, "vision_summary", map[string]interface{}{
			"image_count": len(images),
			"vlm_model":   e.VLM.DefaultModel(),
			"summary":     summary,
		})
	}
	return append(messages, llm.Message{Role: "user", Content: "VLM_IMAGE_SUMMARY:\n" + summary})
}

func (e *Executor) analyzeImages(ctx context.Context, stepPrompt, lastImageTool string, images []mcpclient.ContentBlock) (string, error) {
	prompt := fmt.Sprintf(
		"The agent is performing the step: %q\nThe last tool to produce an image was %q. "+
			"Describe what these screenshots show, focusing on anything relevant to completing the step. "+
			"Be concise (2-4 sentences).",
		stepPrompt, lastImageTool,
	)
	parts := []llm.ContentPart{{Type: "text", Text: prompt}}
	for _, img := range images {
		parts = append(parts, llm.ContentPart{Type: llm.ImageContentType, ImageURL: "data:" + img.MimeType + ";base64," + img.Data})
	}

	resp, err := e.VLM.Chat(ctx, llm.ChatRequest{Messages: []llm.Message{{Role: "user", Parts: parts}}})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func filterTools(tools []llm.ToolDefinition, allowed []string) []llm.ToolDefinition {
	var out []llm.ToolDefinition
	for _, t := range tools {
		for _, a := range allowed {
			if t.Function.Name == a {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// checkStepComplete reports whether content parses as {"step_complete":
// true, ...}. Any parse failure or missing/false field is "not complete".
func checkStepComplete(content string) bool {
	var parsed struct {
		StepComplete bool `json:"step_complete"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return false
	}
	return parsed.StepComplete
}

func truncateForTrace(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	end := maxBytes
	for end > 0 && !isUTF8Boundary(text, end) {
		end--
	}
	return fmt.Sprintf("%s...[truncated, %d total]", text[:end], len(text))
}

func isUTF8Boundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

func saveToolCallImages(store *trace.Store, run *trace.NodeRun, images []mcpclient.ContentBlock, prefix string) {
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

// Package supervision implements post-step and post-loop visual
// verification: capture a screenshot, ask the VLM to describe it, then ask
// the supervision backend (with persistent conversation history) whether
// the step or loop achieved its intended effect (spec §4.5).
package supervision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clickweave-dev/clickweave/internal/jsonextract"
	"github.com/clickweave-dev/clickweave/internal/llm"
	"github.com/clickweave-dev/clickweave/internal/mcpclient"
	"github.com/clickweave-dev/clickweave/internal/workflow"
)

func decodeJSON(raw string, v interface{}) error {
	return json.Unmarshal([]byte(raw), v)
}

const systemPrompt = `You are supervising a UI automation workflow step by step. ` +
	`After each step executes, you receive the step description and a visual observation ` +
	`from a vision model describing the current screen state.

Your job is to determine whether each step achieved its intended effect. ` +
	`Consider the full history of prior steps to understand the workflow's progress.

Return ONLY a JSON object: {"passed": true/false, "reasoning": "brief explanation"}`

// Result is the outcome of one verification call.
type Result struct {
	Passed     bool
	Reasoning  string
	Screenshot string // base64-encoded PNG data, if a verification screenshot was captured
}

// LoopExitReason describes why a loop stopped iterating.
type LoopExitReason string

const (
	LoopExitConditionMet   LoopExitReason = "condition met"
	LoopExitMaxIterations  LoopExitReason = "max iterations"
)

// LoopExit describes a just-finished loop, for verify_loop_exit.
type LoopExit struct {
	LoopName   string
	Reason     LoopExitReason
	Iterations int
}

// ToolCaller is the narrow MCP surface this package needs.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error)
}

// Supervisor holds the backend chain and conversation state for one run.
// Backend is tried first, then VLM, then Agent — the first non-nil wins
// (spec §4.5's fallback chain).
type Supervisor struct {
	Backend llm.Provider // dedicated supervision backend, may be nil
	VLM     llm.Provider // vision backend, may be nil
	Agent   llm.Provider // chat backend, always set — final fallback

	history []llm.Message

	// FocusedApp returns the name of the currently focused app, if known.
	FocusedApp func() string

	// Logger receives human-readable progress lines, mirroring the
	// teacher's log-to-UI convention; nil-safe.
	Logger func(string)
}

// New constructs a Supervisor. agent must not be nil; backend and vlm may
// be nil to fall back further down the chain.
func New(backend, vlm, agent llm.Provider) *Supervisor {
	return &Supervisor{Backend: backend, VLM: vlm, Agent: agent}
}

func (s *Supervisor) log(msg string) {
	if s.Logger != nil {
		s.Logger(msg)
	}
}

func (s *Supervisor) focusedApp() string {
	if s.FocusedApp == nil {
		return "unknown"
	}
	if name := s.FocusedApp(); name != "" {
		return name
	}
	return "unknown"
}

// VerifyStep captures a screenshot, describes it via the VLM, and asks the
// supervision backend whether nodeName's step succeeded. TakeScreenshot
// steps are never verified — they have no observable side effect beyond
// the screenshot itself.
func (s *Supervisor) VerifyStep(ctx context.Context, nodeName string, kind workflow.NodeKind, actionDescription string, tools ToolCaller) Result {
	if kind == workflow.KindTakeScreenshot {
		return Result{Passed: true, Reasoning: "Screenshot steps are not verified"}
	}

	appName := s.focusedApp()
	screenshot := s.captureVerificationScreenshot(ctx, appName, tools)

	var observation string
	if screenshot != "" {
		prompt := fmt.Sprintf(
			"Describe what you see on the screen. Focus on the app %q and whether "+
				"the action %q — %s appears to have taken effect. Be concise (1-2 sentences).",
			appName, nodeName, actionDescription,
		)
		observation = s.describeScreenshot(ctx, screenshot, prompt)
	} else {
		s.log("Supervision: screenshot capture failed, using text-only verification")
		observation = "Screenshot capture failed — no visual observation available."
	}

	stepMessage := fmt.Sprintf(
		"Step: %q — %s\nApp: %s\n\nVisual observation: %s",
		nodeName, actionDescription, appName, observation,
	)
	passed, reasoning := s.judgeWithHistory(ctx, stepMessage, nodeName)

	return Result{Passed: passed, Reasoning: reasoning, Screenshot: screenshot}
}

// VerifyLoopExit captures a screenshot and asks the supervision backend
// whether a just-finished loop achieved its goal.
func (s *Supervisor) VerifyLoopExit(ctx context.Context, exit LoopExit, tools ToolCaller) Result {
	appName := s.focusedApp()
	screenshot := s.captureVerificationScreenshot(ctx, appName, tools)

	var observation string
	if screenshot != "" {
		prompt := fmt.Sprintf(
			"Describe the current state of the app %q. The loop %q just finished after "+
				"%d iterations (exit: %s). What does the screen show now? Be concise (1-2 sentences).",
			appName, exit.LoopName, exit.Iterations, string(exit.Reason),
		)
		observation = s.describeScreenshot(ctx, screenshot, prompt)
	} else {
		s.log("Supervision: screenshot capture failed for loop exit verification")
		observation = "Screenshot capture failed — no visual observation available."
	}

	var exitDescription string
	switch exit.Reason {
	case LoopExitConditionMet:
		exitDescription = fmt.Sprintf("exit condition met after %d iterations", exit.Iterations)
	case LoopExitMaxIterations:
		exitDescription = fmt.Sprintf("hit max iterations (%d) without meeting exit condition", exit.Iterations)
	default:
		exitDescription = string(exit.Reason)
	}

	stepMessage := fmt.Sprintf(
		"Loop completed: %q — %s\nApp: %s\n\nVisual observation: %s",
		exit.LoopName, exitDescription, appName, observation,
	)
	logLabel := fmt.Sprintf("Loop %q", exit.LoopName)
	passed, reasoning := s.judgeWithHistory(ctx, stepMessage, logLabel)

	return Result{Passed: passed, Reasoning: reasoning, Screenshot: screenshot}
}

func (s *Supervisor) describeScreenshot(ctx context.Context, imageBase64, prompt string) string {
	if s.VLM == nil {
		return "No VLM configured — no visual observation available."
	}

	messages := []llm.Message{{
		Role: "user",
		Parts: []llm.ContentPart{
			{Type: "text", Text: prompt},
			{Type: llm.ImageContentType, ImageURL: dataURL(imageBase64)},
		},
	}}

	resp, err := s.VLM.Chat(ctx, llm.ChatRequest{Messages: messages})
	if err != nil {
		s.log(fmt.Sprintf("Supervision: VLM description failed: %v", err))
		return fmt.Sprintf("VLM error: %v", err)
	}
	if resp.Content == "" {
		return "VLM returned empty response"
	}
	return resp.Content
}

// judgeWithHistory appends stepMessage to the persistent supervision
// conversation, calls the first available backend, stores its reply, and
// parses the pass/fail verdict. Backend failures are treated as a pass —
// a broken reasoning backend must never block the workflow.
func (s *Supervisor) judgeWithHistory(ctx context.Context, stepMessage, logLabel string) (bool, string) {
	backend := s.Backend
	if backend == nil {
		backend = s.VLM
	}
	if backend == nil {
		backend = s.Agent
	}

	if len(s.history) == 0 {
		s.history = append(s.history, llm.Message{Role: "system", Content: systemPrompt})
	}
	s.history = append(s.history, llm.Message{Role: "user", Content: stepMessage})

	resp, err := backend.Chat(ctx, llm.ChatRequest{Messages: s.history})

	var passed bool
	var reasoning string
	if err != nil {
		s.log(fmt.Sprintf("Supervision: verification failed: %v", err))
		s.history = append(s.history, llm.Message{
			Role:    "assistant",
			Content: fmt.Sprintf(`{"passed": true, "reasoning": "verification error: %v"}`, err),
		})
		passed, reasoning = true, fmt.Sprintf("Verification error: %v", err)
	} else {
		s.history = append(s.history, llm.Message{Role: "assistant", Content: resp.Content})
		passed, reasoning = parseVerificationResponse(resp.Content)
	}

	status := "FAILED"
	if passed {
		status = "PASSED"
	}
	s.log(fmt.Sprintf("Supervision: %s — %s (%s)", logLabel, status, reasoning))

	return passed, reasoning
}

func (s *Supervisor) captureVerificationScreenshot(ctx context.Context, appName string, tools ToolCaller) string {
	args := map[string]interface{}{"format": "png"}
	if appName != "unknown" {
		args["app_name"] = appName
	}

	blocks, err := tools.CallTool(ctx, "take_screenshot", args)
	if err != nil {
		return ""
	}
	for _, b := range mcpclient.Images(blocks) {
		return b.Data
	}
	return ""
}

func dataURL(imageBase64 string) string {
	return "data:image/png;base64," + imageBase64
}

// parseVerificationResponse extracts {"passed","reasoning"} from raw LLM
// text, tolerating code fences and leading/trailing prose. Unparseable
// responses are treated as a pass, per spec §4.5's fail-open policy.
func parseVerificationResponse(raw string) (bool, string) {
	obj, ok := jsonextract.FromProse(raw)
	if ok {
		var parsed struct {
			Passed    *bool   `json:"passed"`
			Reasoning *string `json:"reasoning"`
		}
		if err := decodeJSON(obj, &parsed); err == nil {
			passed := true
			if parsed.Passed != nil {
				passed = *parsed.Passed
			}
			reasoning := "no reasoning provided"
			if parsed.Reasoning != nil {
				reasoning = *parsed.Reasoning
			}
			return passed, reasoning
		}
	}

	return true, fmt.Sprintf("Could not parse verification response: %s", raw)
}

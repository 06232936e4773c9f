// Package toolmap implements the bidirectional, total function between
// deterministic workflow.NodeType variants and {tool_name, arguments} MCP
// calls (spec §4.7).
package toolmap

import (
	"fmt"

	"github.com/clickweave-dev/clickweave/internal/workflow"
)

// ToolInvocation is the {tool_name, arguments_json} pair a deterministic
// node maps to.
type ToolInvocation struct {
	ToolName  string
	Arguments map[string]interface{}
}

// ErrNotAToolNode is returned by Forward for AiStep and AppDebugKitOp,
// which have no direct tool-call mapping.
type ErrNotAToolNode struct {
	Kind workflow.NodeKind
}

func (e *ErrNotAToolNode) Error() string {
	return fmt.Sprintf("%s is not a tool node", e.Kind)
}

// Forward maps a node to its MCP tool invocation. It covers every
// tool-backed NodeKind; AiStep and AppDebugKitOp return ErrNotAToolNode.
// If, Loop, and EndLoop are control-flow, not tool nodes — the run loop
// evaluates them directly and never calls Forward on them.
func Forward(n workflow.Node) (ToolInvocation, error) {
	switch n.Kind {
	case workflow.KindTakeScreenshot:
		p := n.TakeScreenshot
		args := map[string]interface{}{"mode": lowerMode(p.Mode)}
		if p.TargetApp != "" {
			args["app_name"] = p.TargetApp
		}
		if p.IncludeOCR {
			args["include_ocr"] = true
		}
		return ToolInvocation{ToolName: "take_screenshot", Arguments: args}, nil

	case workflow.KindFindText:
		p := n.FindText
		return ToolInvocation{ToolName: "find_text", Arguments: map[string]interface{}{
			"text": p.SearchText,
		}}, nil

	case workflow.KindFindImage:
		p := n.FindImage
		args := map[string]interface{}{}
		if p.Template != "" {
			args["template_image_base64"] = p.Template
		}
		if p.Threshold != 0 {
			args["threshold"] = p.Threshold
		}
		if p.MaxResults != 0 {
			args["max_results"] = p.MaxResults
		}
		return ToolInvocation{ToolName: "find_image", Arguments: args}, nil

	case workflow.KindClick:
		p := n.Click
		args := map[string]interface{}{
			"button":      lowerButton(p.Button),
			"click_count": clickCountOrDefault(p.ClickCount),
		}
		if p.X != nil {
			args["x"] = *p.X
		}
		if p.Y != nil {
			args["y"] = *p.Y
		}
		if p.Target != "" {
			args["target"] = p.Target
		}
		return ToolInvocation{ToolName: "click", Arguments: args}, nil

	case workflow.KindTypeText:
		p := n.TypeText
		return ToolInvocation{ToolName: "type_text", Arguments: map[string]interface{}{
			"text": p.Text,
		}}, nil

	case workflow.KindPressKey:
		p := n.PressKey
		args := map[string]interface{}{"key": p.Key}
		if len(p.Modifiers) > 0 {
			args["modifiers"] = p.Modifiers
		}
		return ToolInvocation{ToolName: "press_key", Arguments: args}, nil

	case workflow.KindScroll:
		p := n.Scroll
		args := map[string]interface{}{"delta_y": p.DeltaY}
		if p.X != nil {
			args["x"] = *p.X
		}
		if p.Y != nil {
			args["y"] = *p.Y
		}
		return ToolInvocation{ToolName: "scroll", Arguments: args}, nil

	case workflow.KindListWindows:
		p := n.ListWindows
		args := map[string]interface{}{}
		if p.AppName != "" {
			args["app_name"] = p.AppName
		}
		return ToolInvocation{ToolName: "list_windows", Arguments: args}, nil

	case workflow.KindFocusWindow:
		p := n.FocusWindow
		switch p.Method {
		case workflow.FocusByAppName:
			return ToolInvocation{ToolName: "focus_window", Arguments: map[string]interface{}{
				"app_name": p.Value,
			}}, nil
		case workflow.FocusByWindowID:
			return ToolInvocation{ToolName: "focus_window", Arguments: map[string]interface{}{
				"window_id": p.Value,
			}}, nil
		case workflow.FocusByPid:
			return ToolInvocation{ToolName: "focus_window", Arguments: map[string]interface{}{
				"pid": p.Value,
			}}, nil
		default:
			return ToolInvocation{}, fmt.Errorf("toolmap: unknown focus method %q", p.Method)
		}

	case workflow.KindMcpToolCall:
		p := n.McpToolCall
		return ToolInvocation{ToolName: p.ToolName, Arguments: p.Arguments}, nil

	case workflow.KindAppDebugKitOp:
		return ToolInvocation{}, &ErrNotAToolNode{Kind: n.Kind}

	case workflow.KindAiStep:
		return ToolInvocation{}, &ErrNotAToolNode{Kind: n.Kind}

	default:
		return ToolInvocation{}, fmt.Errorf("toolmap: unknown node kind %q", n.Kind)
	}
}

func lowerMode(m workflow.ScreenshotMode) string {
	switch m {
	case workflow.ModeScreen:
		return "screen"
	case workflow.ModeWindow:
		return "window"
	case workflow.ModeRegion:
		return "region"
	default:
		return "screen"
	}
}

func lowerButton(b workflow.MouseButton) string {
	switch b {
	case workflow.ButtonRight:
		return "right"
	case workflow.ButtonCenter:
		return "center"
	default:
		return "left"
	}
}

func clickCountOrDefault(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

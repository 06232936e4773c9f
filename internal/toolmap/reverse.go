package toolmap

import (
	"fmt"

	"github.com/clickweave-dev/clickweave/internal/workflow"
)

// Reverse maps a tool invocation back to the typed node params that would
// produce it. It is used by the workflow planner (out of scope for the
// core) and here to ground the round-trip property test in spec §8 item 2.
// Unknown tool names fall through to McpToolCall, carrying the arguments
// opaquely, per §4.7.
func Reverse(inv ToolInvocation) (workflow.Node, error) {
	switch inv.ToolName {
	case "take_screenshot":
		mode := upperMode(stringArg(inv.Arguments, "mode"))
		return workflow.Node{Kind: workflow.KindTakeScreenshot, TakeScreenshot: &workflow.TakeScreenshotParams{
			Mode:       mode,
			TargetApp:  stringArg(inv.Arguments, "app_name"),
			IncludeOCR: boolArg(inv.Arguments, "include_ocr"),
		}}, nil

	case "find_text":
		return workflow.Node{Kind: workflow.KindFindText, FindText: &workflow.FindTextParams{
			SearchText: stringArg(inv.Arguments, "text"),
		}}, nil

	case "find_image":
		return workflow.Node{Kind: workflow.KindFindImage, FindImage: &workflow.FindImageParams{
			Template:   stringArg(inv.Arguments, "template_image_base64"),
			Threshold:  floatArg(inv.Arguments, "threshold"),
			MaxResults: intArg(inv.Arguments, "max_results"),
		}}, nil

	case "click":
		p := &workflow.ClickParams{
			Target:     stringArg(inv.Arguments, "target"),
			Button:     upperButton(stringArg(inv.Arguments, "button")),
			ClickCount: intArg(inv.Arguments, "click_count"),
		}
		if v, ok := inv.Arguments["x"]; ok {
			x := toInt(v)
			p.X = &x
		}
		if v, ok := inv.Arguments["y"]; ok {
			y := toInt(v)
			p.Y = &y
		}
		return workflow.Node{Kind: workflow.KindClick, Click: p}, nil

	case "type_text":
		return workflow.Node{Kind: workflow.KindTypeText, TypeText: &workflow.TypeTextParams{
			Text: stringArg(inv.Arguments, "text"),
		}}, nil

	case "press_key":
		p := &workflow.PressKeyParams{Key: stringArg(inv.Arguments, "key")}
		if v, ok := inv.Arguments["modifiers"]; ok {
			p.Modifiers = toStringSlice(v)
		}
		return workflow.Node{Kind: workflow.KindPressKey, PressKey: p}, nil

	case "scroll":
		p := &workflow.ScrollParams{DeltaY: intArg(inv.Arguments, "delta_y")}
		if v, ok := inv.Arguments["x"]; ok {
			x := toInt(v)
			p.X = &x
		}
		if v, ok := inv.Arguments["y"]; ok {
			y := toInt(v)
			p.Y = &y
		}
		return workflow.Node{Kind: workflow.KindScroll, Scroll: p}, nil

	case "list_windows":
		return workflow.Node{Kind: workflow.KindListWindows, ListWindows: &workflow.ListWindowsParams{
			AppName: stringArg(inv.Arguments, "app_name"),
		}}, nil

	case "focus_window":
		p := &workflow.FocusWindowParams{}
		switch {
		case inv.Arguments["app_name"] != nil:
			p.Method = workflow.FocusByAppName
			p.Value = stringArg(inv.Arguments, "app_name")
		case inv.Arguments["window_id"] != nil:
			p.Method = workflow.FocusByWindowID
			p.Value = stringArg(inv.Arguments, "window_id")
		case inv.Arguments["pid"] != nil:
			p.Method = workflow.FocusByPid
			p.Value = stringArg(inv.Arguments, "pid")
		default:
			return workflow.Node{}, fmt.Errorf("toolmap: focus_window call carries no recognized target field")
		}
		return workflow.Node{Kind: workflow.KindFocusWindow, FocusWindow: p}, nil

	default:
		return workflow.Node{Kind: workflow.KindMcpToolCall, McpToolCall: &workflow.McpToolCallParams{
			ToolName:  inv.ToolName,
			Arguments: inv.Arguments,
		}}, nil
	}
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolArg(args map[string]interface{}, key string) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func floatArg(args map[string]interface{}, key string) float64 {
	if v, ok := args[key]; ok {
		return toFloat(v)
	}
	return 0
}

func intArg(args map[string]interface{}, key string) int {
	if v, ok := args[key]; ok {
		return toInt(v)
	}
	return 0
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	default:
		return 0
	}
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}

func toStringSlice(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func upperMode(s string) workflow.ScreenshotMode {
	switch s {
	case "window":
		return workflow.ModeWindow
	case "region":
		return workflow.ModeRegion
	default:
		return workflow.ModeScreen
	}
}

func upperButton(s string) workflow.MouseButton {
	switch s {
	case "right":
		return workflow.ButtonRight
	case "center":
		return workflow.ButtonCenter
	default:
		return workflow.ButtonLeft
	}
}

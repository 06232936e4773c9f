// Package workflow defines Clickweave's graph data model: nodes, edges,
// and the typed parameters of every NodeType variant.
package workflow

import "encoding/json"

// NodeKind tags the variant held by a Node.
type NodeKind string

const (
	KindTakeScreenshot NodeKind = "TakeScreenshot"
	KindFindText       NodeKind = "FindText"
	KindFindImage      NodeKind = "FindImage"
	KindClick          NodeKind = "Click"
	KindTypeText       NodeKind = "TypeText"
	KindPressKey       NodeKind = "PressKey"
	KindScroll         NodeKind = "Scroll"
	KindListWindows    NodeKind = "ListWindows"
	KindFocusWindow    NodeKind = "FocusWindow"
	KindMcpToolCall    NodeKind = "McpToolCall"
	KindAiStep         NodeKind = "AiStep"
	KindLoop           NodeKind = "Loop"
	KindEndLoop        NodeKind = "EndLoop"
	KindIf             NodeKind = "If"
	KindAppDebugKitOp  NodeKind = "AppDebugKitOp"
)

// ScreenshotMode selects the capture region for TakeScreenshot.
type ScreenshotMode string

const (
	ModeScreen ScreenshotMode = "Screen"
	ModeWindow ScreenshotMode = "Window"
	ModeRegion ScreenshotMode = "Region"
)

// MouseButton selects which button a Click uses.
type MouseButton string

const (
	ButtonLeft   MouseButton = "Left"
	ButtonRight  MouseButton = "Right"
	ButtonCenter MouseButton = "Center"
)

// FocusMethod selects how FocusWindow identifies its target.
type FocusMethod string

const (
	FocusByAppName  FocusMethod = "AppName"
	FocusByWindowID FocusMethod = "WindowId"
	FocusByPid      FocusMethod = "Pid"
)

// TraceLevel controls how much of a node's execution is persisted.
type TraceLevel string

const (
	TraceOff     TraceLevel = "Off"
	TraceMinimal TraceLevel = "Minimal"
	TraceFull    TraceLevel = "Full"
)

// EdgeOutput tags which outgoing branch an edge represents.
type EdgeOutput string

const (
	OutputNone     EdgeOutput = ""
	OutputLoopBody EdgeOutput = "LoopBody"
	OutputLoopDone EdgeOutput = "LoopDone"
	OutputIfTrue   EdgeOutput = "IfTrue"
	OutputIfFalse  EdgeOutput = "IfFalse"
)

// TakeScreenshotParams is the payload of a TakeScreenshot node.
type TakeScreenshotParams struct {
	Mode        ScreenshotMode `json:"mode"`
	TargetApp   string         `json:"target_app,omitempty"`
	IncludeOCR  bool           `json:"include_ocr,omitempty"`
}

// FindTextParams is the payload of a FindText node.
type FindTextParams struct {
	SearchText string `json:"search_text"`
}

// FindImageParams is the payload of a FindImage node.
type FindImageParams struct {
	Template    string  `json:"template,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
	MaxResults  int     `json:"max_results,omitempty"`
}

// ClickParams is the payload of a Click node.
type ClickParams struct {
	X          *int        `json:"x,omitempty"`
	Y          *int        `json:"y,omitempty"`
	Target     string      `json:"target,omitempty"`
	Button     MouseButton `json:"button,omitempty"`
	ClickCount int         `json:"click_count,omitempty"`
}

// TypeTextParams is the payload of a TypeText node.
type TypeTextParams struct {
	Text string `json:"text"`
}

// PressKeyParams is the payload of a PressKey node.
type PressKeyParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// ScrollParams is the payload of a Scroll node.
type ScrollParams struct {
	DeltaY int  `json:"delta_y"`
	X      *int `json:"x,omitempty"`
	Y      *int `json:"y,omitempty"`
}

// ListWindowsParams is the payload of a ListWindows node.
type ListWindowsParams struct {
	AppName string `json:"app_name,omitempty"`
}

// FocusWindowParams is the payload of a FocusWindow node.
type FocusWindowParams struct {
	Method FocusMethod `json:"method"`
	Value  string      `json:"value"`
}

// McpToolCallParams is the escape hatch for arbitrary MCP tools.
type McpToolCallParams struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// AiStepParams is the payload of an AiStep node.
type AiStepParams struct {
	Prompt        string   `json:"prompt"`
	AllowedTools  []string `json:"allowed_tools,omitempty"`
	MaxToolCalls  int      `json:"max_tool_calls,omitempty"`
	TimeoutMs     *int     `json:"timeout_ms,omitempty"`
	TemplateImage string   `json:"template_image,omitempty"`
	ButtonText    string   `json:"button_text,omitempty"`
}

// LoopParams is the payload of a Loop node.
type LoopParams struct {
	Exit         Condition `json:"exit"`
	MaxIterations int      `json:"max_iterations,omitempty"`
}

// EndLoopParams is the payload of an EndLoop node.
type EndLoopParams struct {
	LoopID string `json:"loop_id"`
}

// IfParams is the payload of an If node.
type IfParams struct {
	Condition Condition `json:"condition"`
}

// nodeAlias mirrors Node but lets Enabled default to true when the field is
// omitted from the source file, rather than to Go's bool zero value.
type nodeAlias Node

// UnmarshalJSON applies the documented enabled-by-default rule: a node with
// no "enabled" key is enabled.
func (n *Node) UnmarshalJSON(data []byte) error {
	aux := struct {
		Enabled *bool `json:"enabled"`
		*nodeAlias
	}{nodeAlias: (*nodeAlias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Enabled == nil {
		n.Enabled = true
	} else {
		n.Enabled = *aux.Enabled
	}
	return nil
}

// Node is one vertex of a workflow graph.
type Node struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Position   Position   `json:"position,omitempty"`
	Enabled    bool       `json:"enabled"`
	Retries    int        `json:"retries,omitempty"`
	TimeoutMs  *int       `json:"timeout_ms,omitempty"`
	TraceLevel TraceLevel `json:"trace_level,omitempty"`
	Kind       NodeKind   `json:"type"`

	TakeScreenshot *TakeScreenshotParams `json:"take_screenshot,omitempty"`
	FindText       *FindTextParams       `json:"find_text,omitempty"`
	FindImage      *FindImageParams      `json:"find_image,omitempty"`
	Click          *ClickParams          `json:"click,omitempty"`
	TypeText       *TypeTextParams       `json:"type_text,omitempty"`
	PressKey       *PressKeyParams       `json:"press_key,omitempty"`
	Scroll         *ScrollParams         `json:"scroll,omitempty"`
	ListWindows    *ListWindowsParams    `json:"list_windows,omitempty"`
	FocusWindow    *FocusWindowParams    `json:"focus_window,omitempty"`
	McpToolCall    *McpToolCallParams    `json:"mcp_tool_call,omitempty"`
	AiStep         *AiStepParams         `json:"ai_step,omitempty"`
	Loop           *LoopParams           `json:"loop,omitempty"`
	EndLoop        *EndLoopParams        `json:"end_loop,omitempty"`
	If             *IfParams             `json:"if,omitempty"`
}

// Position is UI layout only; the core ignores it entirely.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge connects two nodes, optionally tagged with the branch it represents.
type Edge struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Output EdgeOutput `json:"output,omitempty"`
}

// Workflow is the top-level graph: identity, nodes, edges.
type Workflow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID returns the node with the given id, or false if absent.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OutgoingEdges returns all edges whose From matches id, in file order.
func (w *Workflow) OutgoingEdges(id string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgeByOutput returns the single outgoing edge tagged with output, if any.
func (w *Workflow) EdgeByOutput(id string, output EdgeOutput) (Edge, bool) {
	for _, e := range w.OutgoingEdges(id) {
		if e.Output == output {
			return e, true
		}
	}
	return Edge{}, false
}

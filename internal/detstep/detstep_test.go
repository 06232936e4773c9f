package detstep

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clickweave-dev/clickweave/internal/mcpclient"
	"github.com/clickweave-dev/clickweave/internal/trace"
	"github.com/clickweave-dev/clickweave/internal/workflow"
)

type stubTools struct {
	blocks map[string][]mcpclient.ContentBlock
	errs   map[string]error
	calls  []callRecord
}

type callRecord struct {
	name string
	args map[string]interface{}
}

func (s *stubTools) CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error) {
	s.calls = append(s.calls, callRecord{name: name, args: args})
	if err, ok := s.errs[name]; ok {
		return nil, err
	}
	return s.blocks[name], nil
}

func newTestStore(t *testing.T) *trace.Store {
	t.Helper()
	root := t.TempDir()
	return trace.NewStore(root, "wf", "2026-07-31T00-00-00Z")
}

func TestExecute_ClickProducesToolCallAndEvents(t *testing.T) {
	tools := &stubTools{blocks: map[string][]mcpclient.ContentBlock{
		"click": {{Kind: mcpclient.ContentText, Text: "clicked"}},
	}}
	ex := &Executor{Tools: tools}
	store := newTestStore(t)
	run, err := store.CreateRun("node1", "run1", workflow.TraceFull)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	x, y := 100, 200
	n := workflow.Node{Kind: workflow.KindClick, Click: &workflow.ClickParams{
		X: &x, Y: &y, Button: workflow.ButtonLeft, ClickCount: 1,
	}}
	res, err := ex.Execute(context.Background(), n, run, store)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ToolName != "click" {
		t.Fatalf("got tool name %q", res.ToolName)
	}
	if res.ResultText != "clicked" {
		t.Fatalf("got result text %q", res.ResultText)
	}

	var eventTypes []string
	for _, ev := range run.Events {
		eventTypes = append(eventTypes, ev.EventType)
	}
	if len(eventTypes) != 2 || eventTypes[0] != "tool_call" || eventTypes[1] != "tool_result" {
		t.Fatalf("expected [tool_call, tool_result] events, got %v", eventTypes)
	}
}

func TestExecute_AppDebugKitOpIsNoOp(t *testing.T) {
	tools := &stubTools{}
	ex := &Executor{Tools: tools}

	res, err := ex.Execute(context.Background(), workflow.Node{Kind: workflow.KindAppDebugKitOp, Name: "unimplemented_op"}, nil, nil)
	if err != nil {
		t.Fatalf("expected AppDebugKitOp to succeed as no-op, got %v", err)
	}
	if res.ToolName != "" {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if len(tools.calls) != 0 {
		t.Fatalf("expected no MCP calls for AppDebugKitOp, got %v", tools.calls)
	}
}

func TestExecute_AiStepReturnsNotDeterministic(t *testing.T) {
	ex := &Executor{Tools: &stubTools{}}
	_, err := ex.Execute(context.Background(), workflow.Node{Kind: workflow.KindAiStep, AiStep: &workflow.AiStepParams{}}, nil, nil)
	if !errors.Is(err, ErrNotDeterministic) {
		t.Fatalf("expected ErrNotDeterministic, got %v", err)
	}
}

func TestExecute_McpToolCallEmptyNameIsError(t *testing.T) {
	ex := &Executor{Tools: &stubTools{}}
	n := workflow.Node{Kind: workflow.KindMcpToolCall, McpToolCall: &workflow.McpToolCallParams{ToolName: ""}}
	_, err := ex.Execute(context.Background(), n, nil, nil)
	if err == nil {
		t.Fatal("expected error for empty tool_name")
	}
}

func TestExecute_ToolFailurePropagates(t *testing.T) {
	tools := &stubTools{errs: map[string]error{"click": errors.New("connection lost")}}
	ex := &Executor{Tools: tools}
	x, y := 1, 2
	n := workflow.Node{Kind: workflow.KindClick, Click: &workflow.ClickParams{X: &x, Y: &y, Button: workflow.ButtonLeft, ClickCount: 1}}
	_, err := ex.Execute(context.Background(), n, nil, nil)
	if err == nil {
		t.Fatal("expected tool failure to propagate")
	}
}

func TestResolveImagePaths_RewritesRelativeToProject(t *testing.T) {
	ex := &Executor{ProjectPath: "/home/user/myproject"}
	args := map[string]interface{}{"template_path": "assets/button.png", "other": "unchanged"}
	got := ex.resolveImagePaths(args)
	want := filepath.Join("/home/user/myproject", "assets/button.png")
	if got["template_path"] != want {
		t.Fatalf("got %v want %v", got["template_path"], want)
	}
	if got["other"] != "unchanged" {
		t.Fatalf("expected unrelated key untouched, got %v", got["other"])
	}
}

func TestResolveImagePaths_LeavesAbsolutePathsAlone(t *testing.T) {
	ex := &Executor{ProjectPath: "/home/user/myproject"}
	args := map[string]interface{}{"image_path": "/already/absolute.png"}
	got := ex.resolveImagePaths(args)
	if got["image_path"] != "/already/absolute.png" {
		t.Fatalf("got %v", got["image_path"])
	}
}

func TestResolveImagePaths_NoProjectLeavesArgsUnchanged(t *testing.T) {
	ex := &Executor{}
	args := map[string]interface{}{"path": "relative/thing.png"}
	got := ex.resolveImagePaths(args)
	if got["path"] != "relative/thing.png" {
		t.Fatalf("got %v", got["path"])
	}
}

func TestSaveResultImages_WritesArtifactFiles(t *testing.T) {
	ex := &Executor{}
	store := newTestStore(t)
	run, err := store.CreateRun("node1", "run1", workflow.TraceFull)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	encoded := base64.StdEncoding.EncodeToString(raw)
	images := []mcpclient.ContentBlock{{Kind: mcpclient.ContentImage, Data: encoded, MimeType: "image/png"}}

	ex.saveResultImages(store, run, images, "result")

	if len(run.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(run.Artifacts))
	}
	art := run.Artifacts[0]
	if art.ArtifactID != "result_0.png" {
		t.Fatalf("got artifact id %q", art.ArtifactID)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != string(raw) {
		t.Fatalf("artifact contents mismatch")
	}
}

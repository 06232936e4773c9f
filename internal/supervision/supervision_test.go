package supervision

import (
	"context"
	"errors"
	"testing"

	"github.com/clickweave-dev/clickweave/internal/llm"
	"github.com/clickweave-dev/clickweave/internal/mcpclient"
	"github.com/clickweave-dev/clickweave/internal/workflow"
)

func TestParseVerificationResponse_Pass(t *testing.T) {
	passed, reasoning := parseVerificationResponse(`{"passed": true, "reasoning": "Button 2 is highlighted"}`)
	if !passed {
		t.Fatal("expected passed=true")
	}
	if reasoning != "Button 2 is highlighted" {
		t.Fatalf("got %q", reasoning)
	}
}

func TestParseVerificationResponse_Fail(t *testing.T) {
	passed, reasoning := parseVerificationResponse(`{"passed": false, "reasoning": "Display still shows 0"}`)
	if passed {
		t.Fatal("expected passed=false")
	}
	if reasoning != "Display still shows 0" {
		t.Fatalf("got %q", reasoning)
	}
}

func TestParseVerificationResponse_CodeBlock(t *testing.T) {
	passed, _ := parseVerificationResponse("```json\n{\"passed\": true, \"reasoning\": \"ok\"}\n```")
	if !passed {
		t.Fatal("expected passed=true")
	}
}

func TestParseVerificationResponse_MalformedAssumesPass(t *testing.T) {
	passed, _ := parseVerificationResponse("I think it worked fine")
	if !passed {
		t.Fatal("expected fail-open to passed=true for unparseable response")
	}
}

type stubProvider struct {
	content string
	err     error
	calls   int
}

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Content: s.content}, nil
}
func (s *stubProvider) ModelInfo(ctx context.Context) (*llm.ModelInfo, error) { return nil, nil }
func (s *stubProvider) DefaultModel() string                                 { return "stub" }
func (s *stubProvider) Name() string                                         { return "stub" }

type stubTools struct {
	blocks []mcpclient.ContentBlock
	err    error
}

func (s *stubTools) CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error) {
	return s.blocks, s.err
}

func TestVerifyStep_SkipsTakeScreenshot(t *testing.T) {
	sup := New(nil, nil, &stubProvider{content: `{"passed": false, "reasoning": "should not be called"}`})
	res := sup.VerifyStep(context.Background(), "shot1", workflow.KindTakeScreenshot, "take a screenshot", &stubTools{})
	if !res.Passed {
		t.Fatal("expected TakeScreenshot steps to always pass verification")
	}
}

func TestVerifyStep_BackendFallbackChain(t *testing.T) {
	agent := &stubProvider{content: `{"passed": true, "reasoning": "from agent"}`}
	sup := New(nil, nil, agent)
	tools := &stubTools{blocks: []mcpclient.ContentBlock{{Kind: mcpclient.ContentImage, Data: "base64data"}}}

	res := sup.VerifyStep(context.Background(), "click1", workflow.KindClick, "click the button", tools)
	if !res.Passed || res.Reasoning != "from agent" {
		t.Fatalf("expected fallback to agent backend, got %+v", res)
	}
	if agent.calls != 1 {
		t.Fatalf("expected one agent call, got %d", agent.calls)
	}
}

func TestVerifyStep_DedicatedBackendPreferredOverVLMAndAgent(t *testing.T) {
	backend := &stubProvider{content: `{"passed": true, "reasoning": "from backend"}`}
	vlm := &stubProvider{content: "a screenshot description"}
	agent := &stubProvider{content: `{"passed": false, "reasoning": "should not be reached"}`}
	sup := New(backend, vlm, agent)
	tools := &stubTools{blocks: []mcpclient.ContentBlock{{Kind: mcpclient.ContentImage, Data: "base64data"}}}

	res := sup.VerifyStep(context.Background(), "click1", workflow.KindClick, "click the button", tools)
	if !res.Passed || res.Reasoning != "from backend" {
		t.Fatalf("expected dedicated backend to be consulted, got %+v", res)
	}
	if agent.calls != 0 {
		t.Fatal("expected agent backend not to be called when a dedicated backend exists")
	}
}

func TestVerifyStep_ScreenshotFailureDegradesToTextOnly(t *testing.T) {
	agent := &stubProvider{content: `{"passed": true, "reasoning": "text only"}`}
	sup := New(nil, nil, agent)
	tools := &stubTools{err: errors.New("screenshot tool unavailable")}

	res := sup.VerifyStep(context.Background(), "click1", workflow.KindClick, "click the button", tools)
	if !res.Passed {
		t.Fatalf("expected text-only verification to still produce a verdict, got %+v", res)
	}
	if res.Screenshot != "" {
		t.Fatal("expected no screenshot recorded when capture fails")
	}
}

func TestVerifyStep_BackendErrorFailsOpen(t *testing.T) {
	agent := &stubProvider{err: errors.New("llm unreachable")}
	sup := New(nil, nil, agent)

	res := sup.VerifyStep(context.Background(), "click1", workflow.KindClick, "click the button", &stubTools{})
	if !res.Passed {
		t.Fatal("expected verification backend failure to fail open (passed=true)")
	}
}

func TestVerifyLoopExit_IncludesIterationCount(t *testing.T) {
	agent := &stubProvider{content: `{"passed": true, "reasoning": "loop finished cleanly"}`}
	sup := New(nil, nil, agent)

	res := sup.VerifyLoopExit(context.Background(), LoopExit{
		LoopName: "retry_until_done", Reason: LoopExitConditionMet, Iterations: 3,
	}, &stubTools{})
	if !res.Passed {
		t.Fatalf("expected pass, got %+v", res)
	}
}

func TestJudgeWithHistory_PersistsConversationAcrossCalls(t *testing.T) {
	agent := &stubProvider{content: `{"passed": true, "reasoning": "ok"}`}
	sup := New(nil, nil, agent)

	sup.VerifyStep(context.Background(), "step1", workflow.KindClick, "click", &stubTools{})
	sup.VerifyStep(context.Background(), "step2", workflow.KindClick, "click again", &stubTools{})

	// system + 2x(user,assistant) = 5 messages accumulated.
	if len(sup.history) != 5 {
		t.Fatalf("expected 5 accumulated history messages, got %d", len(sup.history))
	}
	if sup.history[0].Role != "system" {
		t.Fatalf("expected first history message to be the system prompt, got role %q", sup.history[0].Role)
	}
}

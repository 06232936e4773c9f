package resolver

import (
	"context"
	"fmt"

	"github.com/clickweave-dev/clickweave/internal/llm"
	"github.com/clickweave-dev/clickweave/internal/mcpclient"
)

// stubProvider returns a fixed Chat response or error, recording every
// prompt it was asked to answer.
type stubProvider struct {
	responses []string
	errs      []error
	calls     []string
	i         int
}

func (s *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.calls = append(s.calls, req.Messages[len(req.Messages)-1].Content)
	idx := s.i
	s.i++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx >= len(s.responses) {
		return nil, fmt.Errorf("stubProvider: no response queued for call %d", idx)
	}
	return &llm.ChatResponse{Content: s.responses[idx]}, nil
}

func (s *stubProvider) ModelInfo(ctx context.Context) (*llm.ModelInfo, error) { return nil, nil }
func (s *stubProvider) DefaultModel() string                                 { return "stub-model" }
func (s *stubProvider) Name() string                                         { return "stub" }

// stubToolCaller returns canned content blocks per tool name.
type stubToolCaller struct {
	results map[string][]mcpclient.ContentBlock
	errs    map[string]error
	calls   []string
}

func (s *stubToolCaller) CallTool(ctx context.Context, name string, args map[string]interface{}) ([]mcpclient.ContentBlock, error) {
	s.calls = append(s.calls, name)
	if err, ok := s.errs[name]; ok {
		return nil, err
	}
	return s.results[name], nil
}

func textBlock(s string) mcpclient.ContentBlock {
	return mcpclient.ContentBlock{Kind: mcpclient.ContentText, Text: s}
}

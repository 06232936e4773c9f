package resolver

import (
	"context"
	"fmt"

	"github.com/clickweave-dev/clickweave/internal/decisioncache"
	"github.com/clickweave-dev/clickweave/internal/jsonextract"
	"github.com/clickweave-dev/clickweave/internal/llm"
)

// ParseAvailableElements extracts the available_elements string array from
// a find_text tool result's second content block. It tolerates extra
// whitespace, key order, and additional fields, per spec §4.4. Returns
// false if no non-empty available_elements array is present.
func ParseAvailableElements(resultText string) ([]string, bool) {
	offset := 0
	for {
		obj, end, ok := jsonextract.ExtractFirstObjectAfter(resultText, offset)
		if !ok {
			return nil, false
		}
		offset = end

		var parsed struct {
			AvailableElements []string `json:"available_elements"`
		}
		if err := decodeJSON(obj, &parsed); err != nil {
			continue
		}
		if len(parsed.AvailableElements) > 0 {
			return parsed.AvailableElements, true
		}
	}
}

// ElementResolver resolves a user-facing click/find target string to a
// stable accessibility element name.
type ElementResolver struct {
	memCache *ElementCache
	decCache *decisioncache.Cache
	provider llm.Provider
	mode     Mode

	EventRecorder func(resolvedName string)
}

// NewElementResolver constructs a resolver bound to one run's caches.
func NewElementResolver(memCache *ElementCache, decCache *decisioncache.Cache, provider llm.Provider, mode Mode) *ElementResolver {
	return &ElementResolver{memCache: memCache, decCache: decCache, provider: provider, mode: mode}
}

type elementNameResponse struct {
	Name *string `json:"name"`
}

const symbolMappingPrompt = "Common symbol mappings: × = Multiply, ÷ = Divide, − = Subtract, AC = All Clear."

// Resolve picks the accessibility element name matching target among the
// elements FindText reported available. nodeID scopes the decision-cache
// lookup/write.
func (r *ElementResolver) Resolve(ctx context.Context, nodeID, target, appName string, available []string) (string, error) {
	if cached, ok := r.memCache.Get(target, appName); ok {
		return cached, nil
	}

	if cached, ok := r.decCache.GetElementResolution(nodeID, target, appName); ok {
		if stringInSlice(available, cached.ResolvedName) {
			r.memCache.Put(target, appName, cached.ResolvedName)
			return cached.ResolvedName, nil
		}
	}

	prompt := fmt.Sprintf(
		"The user wants to interact with the element described as: %q\n\n"+
			"Available elements:\n%s\n\n%s\n\n"+
			"Respond with strictly JSON: {\"name\": \"<exact name from the list>\"} or "+
			"{\"name\": null} if nothing matches. No other text.",
		target, formatList(available), symbolMappingPrompt,
	)

	resp, err := r.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("resolver: element resolution LLM call: %w", err)
	}

	raw, ok := jsonextract.FromProse(resp.Content)
	if !ok {
		return "", fmt.Errorf("resolver: element resolution: no JSON object in LLM response")
	}
	var parsed elementNameResponse
	if err := decodeJSON(raw, &parsed); err != nil {
		return "", fmt.Errorf("resolver: element resolution: malformed JSON: %w", err)
	}
	if parsed.Name == nil {
		return "", fmt.Errorf("resolver: element %q not in available list", target)
	}
	if !stringInSlice(available, *parsed.Name) {
		return "", fmt.Errorf("resolver: LLM returned element name %q not present in available_elements", *parsed.Name)
	}

	r.memCache.Put(target, appName, *parsed.Name)
	if r.mode == ModeTest {
		r.decCache.PutElementResolution(nodeID, target, appName, decisioncache.ElementResolution{
			Target: target, AppName: appName, ResolvedName: *parsed.Name,
		})
	}
	if r.EventRecorder != nil {
		r.EventRecorder(*parsed.Name)
	}
	return *parsed.Name, nil
}

func stringInSlice(xs []string, x string) bool {
	for _, e := range xs {
		if e == x {
			return true
		}
	}
	return false
}

func formatList(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("- %s", x)
	}
	return out
}

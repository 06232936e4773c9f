package resolver

import (
	"context"
	"fmt"

	"github.com/clickweave-dev/clickweave/internal/decisioncache"
	"github.com/clickweave-dev/clickweave/internal/jsonextract"
	"github.com/clickweave-dev/clickweave/internal/llm"
)

// ClickMatch is one candidate element a click target resolved to multiple
// instances of.
type ClickMatch struct {
	Text string
	Role string
	X    float64
	Y    float64
}

// ParseClickMatches extracts the raw candidate-match array from a find_text
// response's first content block: a JSON array of {"text","role","x","y"}
// objects (spec §4.4's "list them with text, role, and coordinates").
// Missing fields default to their zero value rather than failing the parse,
// matching the original's tolerant field access.
func ParseClickMatches(resultText string) ([]ClickMatch, bool) {
	raw, ok := jsonextract.ExtractJSONArray(resultText)
	if !ok {
		return nil, false
	}
	var parsed []struct {
		Text string  `json:"text"`
		Role string  `json:"role"`
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
	}
	if err := decodeJSON(raw, &parsed); err != nil {
		return nil, false
	}
	out := make([]ClickMatch, len(parsed))
	for i, m := range parsed {
		out[i] = ClickMatch{Text: m.Text, Role: m.Role, X: m.X, Y: m.Y}
	}
	return out, true
}

// ClickDisambiguator picks among multiple click matches when a target
// string is ambiguous.
type ClickDisambiguator struct {
	decCache *decisioncache.Cache
	provider llm.Provider
	mode     Mode

	EventRecorder func(chosenText, chosenRole string)
}

// NewClickDisambiguator constructs a disambiguator bound to the run's
// decision cache.
func NewClickDisambiguator(decCache *decisioncache.Cache, provider llm.Provider, mode Mode) *ClickDisambiguator {
	return &ClickDisambiguator{decCache: decCache, provider: provider, mode: mode}
}

type indexResponse struct {
	Index int `json:"index"`
}

// Disambiguate picks one of several matches for target, preferring a prior
// Test-mode decision-cache verdict, falling back to the LLM. nodeID scopes
// the decision-cache lookup/write.
func (d *ClickDisambiguator) Disambiguate(ctx context.Context, nodeID, target, appName string, matches []ClickMatch) (ClickMatch, error) {
	if len(matches) == 0 {
		return ClickMatch{}, fmt.Errorf("resolver: no matches to disambiguate for target %q", target)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	if cached, ok := d.decCache.GetClickDisambiguation(nodeID, target, appName); ok {
		for _, m := range matches {
			if m.Text == cached.ChosenText && m.Role == cached.ChosenRole {
				return m, nil
			}
		}
	}

	var listing string
	for i, m := range matches {
		listing += fmt.Sprintf("%d: text=%q role=%q at (%.0f, %.0f)\n", i, m.Text, m.Role, m.X, m.Y)
	}

	prompt := fmt.Sprintf(
		"Multiple elements matched the target %q:\n%s\n"+
			"Pick the index of the best match. Prefer interactive elements and exact text matches. "+
			"Respond with strictly JSON: {\"index\": <int>}. No other text.",
		target, listing,
	)

	resp, err := d.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return ClickMatch{}, fmt.Errorf("resolver: click disambiguation LLM call: %w", err)
	}

	raw, ok := jsonextract.FromProse(resp.Content)
	if !ok {
		return ClickMatch{}, fmt.Errorf("resolver: click disambiguation: no JSON object in LLM response")
	}
	var parsed indexResponse
	if err := decodeJSON(raw, &parsed); err != nil {
		return ClickMatch{}, fmt.Errorf("resolver: click disambiguation: malformed JSON: %w", err)
	}
	if parsed.Index < 0 || parsed.Index >= len(matches) {
		return ClickMatch{}, fmt.Errorf("resolver: click disambiguation: index %d out of range [0,%d)", parsed.Index, len(matches))
	}

	chosen := matches[parsed.Index]
	if d.mode == ModeTest {
		d.decCache.PutClickDisambiguation(nodeID, target, appName, decisioncache.ClickDisambiguation{
			Target: target, AppName: appName, ChosenText: chosen.Text, ChosenRole: chosen.Role,
		})
	}
	if d.EventRecorder != nil {
		d.EventRecorder(chosen.Text, chosen.Role)
	}
	return chosen, nil
}

package resolver

import (
	"context"
	"testing"

	"github.com/clickweave-dev/clickweave/internal/decisioncache"
)

func TestClickDisambiguator_SingleMatchSkipsLLM(t *testing.T) {
	provider := &stubProvider{}
	d := NewClickDisambiguator(decisioncache.New("wf1"), provider, ModeRun)
	match := ClickMatch{Text: "OK", Role: "button", X: 10, Y: 20}

	got, err := d.Disambiguate(context.Background(), "node1", "OK", "Calculator", []ClickMatch{match})
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if got != match {
		t.Fatalf("got %+v", got)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("expected no LLM call for a single match, got %d", len(provider.calls))
	}
}

func TestClickDisambiguator_PicksLLMIndex(t *testing.T) {
	matches := []ClickMatch{
		{Text: "7", Role: "button", X: 1, Y: 1},
		{Text: "7", Role: "text", X: 5, Y: 5},
	}
	provider := &stubProvider{responses: []string{`{"index": 0}`}}
	d := NewClickDisambiguator(decisioncache.New("wf1"), provider, ModeTest)

	var recorded struct{ text, role string }
	d.EventRecorder = func(text, role string) { recorded.text, recorded.role = text, role }

	got, err := d.Disambiguate(context.Background(), "node1", "7", "Calculator", matches)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if got != matches[0] {
		t.Fatalf("got %+v", got)
	}
	if recorded.text != "7" || recorded.role != "button" {
		t.Fatalf("EventRecorder not invoked correctly: %+v", recorded)
	}
}

func TestClickDisambiguator_OutOfRangeIndexIsError(t *testing.T) {
	matches := []ClickMatch{
		{Text: "7", Role: "button"},
		{Text: "7", Role: "text"},
	}
	provider := &stubProvider{responses: []string{`{"index": 5}`}}
	d := NewClickDisambiguator(decisioncache.New("wf1"), provider, ModeRun)

	_, err := d.Disambiguate(context.Background(), "node1", "7", "Calculator", matches)
	if err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestClickDisambiguator_TestModePersistsToDecisionCache(t *testing.T) {
	matches := []ClickMatch{
		{Text: "7", Role: "button"},
		{Text: "7", Role: "text"},
	}
	decCache := decisioncache.New("wf1")
	provider := &stubProvider{responses: []string{`{"index": 1}`}}
	d := NewClickDisambiguator(decCache, provider, ModeTest)

	if _, err := d.Disambiguate(context.Background(), "node1", "7", "Calculator", matches); err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	cached, ok := decCache.GetClickDisambiguation("node1", "7", "Calculator")
	if !ok {
		t.Fatal("expected decision cache write in Test mode")
	}
	if cached.ChosenText != "7" || cached.ChosenRole != "text" {
		t.Fatalf("got %+v", cached)
	}
}

func TestClickDisambiguator_RunModeDoesNotPersist(t *testing.T) {
	matches := []ClickMatch{
		{Text: "7", Role: "button"},
		{Text: "7", Role: "text"},
	}
	decCache := decisioncache.New("wf1")
	provider := &stubProvider{responses: []string{`{"index": 1}`}}
	d := NewClickDisambiguator(decCache, provider, ModeRun)

	if _, err := d.Disambiguate(context.Background(), "node1", "7", "Calculator", matches); err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if _, ok := decCache.GetClickDisambiguation("node1", "7", "Calculator"); ok {
		t.Fatal("expected no decision cache write in Run mode")
	}
}

func TestClickDisambiguator_CachedChoiceReusedWithoutLLM(t *testing.T) {
	matches := []ClickMatch{
		{Text: "7", Role: "button"},
		{Text: "7", Role: "text"},
	}
	decCache := decisioncache.New("wf1")
	decCache.PutClickDisambiguation("node1", "7", "Calculator", decisioncache.ClickDisambiguation{
		Target: "7", AppName: "Calculator", ChosenText: "7", ChosenRole: "text",
	})
	provider := &stubProvider{}
	d := NewClickDisambiguator(decCache, provider, ModeRun)

	got, err := d.Disambiguate(context.Background(), "node1", "7", "Calculator", matches)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if got != matches[1] {
		t.Fatalf("got %+v", got)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("expected no LLM call when a valid cached choice exists, got %d", len(provider.calls))
	}
}

func TestClickDisambiguator_NoMatchesIsError(t *testing.T) {
	d := NewClickDisambiguator(decisioncache.New("wf1"), &stubProvider{}, ModeRun)
	_, err := d.Disambiguate(context.Background(), "node1", "7", "Calculator", nil)
	if err == nil {
		t.Fatal("expected error for zero matches")
	}
}

func TestParseClickMatches_ParsesArray(t *testing.T) {
	text := `[{"text": "7", "role": "button", "x": 10, "y": 20}, {"text": "7", "role": "text", "x": 30, "y": 40}]`
	matches, ok := ParseClickMatches(text)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []ClickMatch{
		{Text: "7", Role: "button", X: 10, Y: 20},
		{Text: "7", Role: "text", X: 30, Y: 40},
	}
	if len(matches) != len(want) || matches[0] != want[0] || matches[1] != want[1] {
		t.Fatalf("got %+v", matches)
	}
}

func TestParseClickMatches_ToleratesMissingFields(t *testing.T) {
	text := `[{"text": "OK"}]`
	matches, ok := ParseClickMatches(text)
	if !ok {
		t.Fatal("expected ok")
	}
	if matches[0] != (ClickMatch{Text: "OK"}) {
		t.Fatalf("got %+v", matches[0])
	}
}

func TestParseClickMatches_NoArrayIsNotOk(t *testing.T) {
	_, ok := ParseClickMatches("not json at all")
	if ok {
		t.Fatal("expected not ok for non-array input")
	}
}

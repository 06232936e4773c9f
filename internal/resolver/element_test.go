package resolver

import (
	"context"
	"testing"

	"github.com/clickweave-dev/clickweave/internal/decisioncache"
)

func TestParseAvailableElements_SecondContentBlock(t *testing.T) {
	text := `some prose before {"available_elements": ["1", "2", "Multiply"]} trailing`
	got, ok := ParseAvailableElements(text)
	if !ok {
		t.Fatal("expected available_elements to be found")
	}
	want := []string{"1", "2", "Multiply"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestParseAvailableElements_SkipsEmptyArraysAndScansForward(t *testing.T) {
	text := `{"available_elements": []} then later {"available_elements": ["AC"]}`
	got, ok := ParseAvailableElements(text)
	if !ok {
		t.Fatal("expected a later non-empty available_elements to be found")
	}
	if len(got) != 1 || got[0] != "AC" {
		t.Fatalf("got %v", got)
	}
}

func TestParseAvailableElements_NoneFound(t *testing.T) {
	_, ok := ParseAvailableElements(`{"other_field": 1}`)
	if ok {
		t.Fatal("expected no available_elements to be found")
	}
}

// TestElementResolver_CacheHitSkipsLLM grounds spec §8 scenario 3: a prior
// memory-cache hit resolves an element with zero LLM calls.
func TestElementResolver_CacheHitSkipsLLM(t *testing.T) {
	memCache := NewElementCache()
	memCache.Put("7", "Calculator", "button-7")
	decCache := decisioncache.New("wf1")
	provider := &stubProvider{}

	r := NewElementResolver(memCache, decCache, provider, ModeRun)
	got, err := r.Resolve(context.Background(), "node1", "7", "Calculator", []string{"button-7", "button-8"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "button-7" {
		t.Fatalf("got %q", got)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("expected zero LLM calls on memory cache hit, got %d", len(provider.calls))
	}
}

func TestElementResolver_DecisionCacheHitValidatedAgainstAvailable(t *testing.T) {
	decCache := decisioncache.New("wf1")
	decCache.PutElementResolution("node1", "7", "Calculator", decisioncache.ElementResolution{
		Target: "7", AppName: "Calculator", ResolvedName: "button-7",
	})
	provider := &stubProvider{}

	r := NewElementResolver(NewElementCache(), decCache, provider, ModeRun)
	got, err := r.Resolve(context.Background(), "node1", "7", "Calculator", []string{"button-7", "button-8"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "button-7" {
		t.Fatalf("got %q", got)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("expected zero LLM calls when decision cache entry still valid, got %d", len(provider.calls))
	}
}

func TestElementResolver_DecisionCacheStaleEntryFallsBackToLLM(t *testing.T) {
	decCache := decisioncache.New("wf1")
	decCache.PutElementResolution("node1", "7", "Calculator", decisioncache.ElementResolution{
		Target: "7", AppName: "Calculator", ResolvedName: "stale-button",
	})
	provider := &stubProvider{responses: []string{`{"name": "button-7"}`}}

	r := NewElementResolver(NewElementCache(), decCache, provider, ModeTest)
	got, err := r.Resolve(context.Background(), "node1", "7", "Calculator", []string{"button-7", "button-8"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "button-7" {
		t.Fatalf("got %q", got)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("expected one LLM call after stale decision-cache miss, got %d", len(provider.calls))
	}
}

func TestElementResolver_PersistsToDecisionCacheOnlyInTestMode(t *testing.T) {
	decCache := decisioncache.New("wf1")
	provider := &stubProvider{responses: []string{`{"name": "button-9"}`}}

	r := NewElementResolver(NewElementCache(), decCache, provider, ModeRun)
	if _, err := r.Resolve(context.Background(), "node1", "9", "Calculator", []string{"button-9"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := decCache.GetElementResolution("node1", "9", "Calculator"); ok {
		t.Fatal("expected no decision-cache write in Run mode")
	}
}

func TestElementResolver_RejectsNameNotInAvailableList(t *testing.T) {
	provider := &stubProvider{responses: []string{`{"name": "button-ghost"}`}}
	r := NewElementResolver(NewElementCache(), decisioncache.New("wf1"), provider, ModeRun)
	_, err := r.Resolve(context.Background(), "node1", "x", "Calculator", []string{"button-1"})
	if err == nil {
		t.Fatal("expected error for name outside available list")
	}
}

func TestElementResolver_NullNameIsError(t *testing.T) {
	provider := &stubProvider{responses: []string{`{"name": null}`}}
	r := NewElementResolver(NewElementCache(), decisioncache.New("wf1"), provider, ModeRun)
	_, err := r.Resolve(context.Background(), "node1", "x", "Calculator", []string{"button-1"})
	if err == nil {
		t.Fatal("expected error when LLM reports no match")
	}
}

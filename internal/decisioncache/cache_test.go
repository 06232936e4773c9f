package decisioncache

import (
	"path/filepath"
	"testing"
)

func TestKey_NodeIDDistinguishesSameTargetAppName(t *testing.T) {
	k1 := Key("node1", "Submit", "Calculator")
	k2 := Key("node2", "Submit", "Calculator")
	if k1 == k2 {
		t.Fatal("expected different node_id to produce different keys")
	}
}

func TestRoundTripSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.json")

	c := New("wf-123")
	c.PutElementResolution("node1", "×", "Calculator", ElementResolution{
		Target: "×", AppName: "Calculator", ResolvedName: "Multiply",
	})
	c.PutClickDisambiguation("node2", "Submit", "", ClickDisambiguation{
		Target: "Submit", ChosenText: "Submit", ChosenRole: "button",
	})

	if err := c.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path, "wf-123")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	er, ok := loaded.GetElementResolution("node1", "×", "Calculator")
	if !ok || er.ResolvedName != "Multiply" {
		t.Fatalf("expected cached element resolution, got %+v ok=%v", er, ok)
	}
	cd, ok := loaded.GetClickDisambiguation("node2", "Submit", "")
	if !ok || cd.ChosenText != "Submit" {
		t.Fatalf("expected cached click disambiguation, got %+v ok=%v", cd, ok)
	}
}

func TestLoadNonexistentReturnsEmptyCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing-decisions.json")
	c, err := Load(path, "wf-1")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(c.ClickDisambiguation) != 0 || len(c.ElementResolution) != 0 {
		t.Fatal("expected empty cache")
	}
}

func TestSaveIsAtomic_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.json")
	c := New("wf-1")
	if err := c.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, ".decisions-*.json.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected temp file to be renamed away, found %v", matches)
	}
}

package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/clickweave-dev/clickweave/internal/workflow"
)

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	return bytes.Count(data, []byte("\n"))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	return NewStore(root, "wf1", "2026-07-31T000000Z")
}

func TestCreateAndLoadRun(t *testing.T) {
	s := newTestStore(t)
	run, err := s.CreateRun("node1", "run1", workflow.TraceFull)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.Status != StatusOk {
		t.Fatalf("expected initial status Ok, got %v", run.Status)
	}

	loaded, err := s.LoadRun("node1", "run1")
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if loaded.RunID != "run1" || loaded.NodeID != "node1" {
		t.Fatalf("unexpected loaded run: %+v", loaded)
	}
}

func TestAppendEvent(t *testing.T) {
	s := newTestStore(t)
	run, _ := s.CreateRun("node1", "run1", workflow.TraceFull)
	s.AppendEvent(run, "node_started", map[string]string{"node_id": "node1"})
	s.AppendEvent(run, "tool_call", map[string]string{"name": "click"})

	if len(run.Events) != 2 {
		t.Fatalf("expected 2 in-memory events, got %d", len(run.Events))
	}

	path := filepath.Join(s.runDir("node1", "run1"), "events.jsonl")
	data := readFile(t, path)
	if countLines(data) != 2 {
		t.Fatalf("expected 2 lines in events.jsonl, got %d", countLines(data))
	}
}

func TestSaveAndFinalizeRun(t *testing.T) {
	s := newTestStore(t)
	run, _ := s.CreateRun("node1", "run1", workflow.TraceFull)
	s.FinalizeRun(run, StatusOk)

	loaded, err := s.LoadRun("node1", "run1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != StatusOk || loaded.EndedAt == nil {
		t.Fatalf("expected finalized Ok run with ended_at set, got %+v", loaded)
	}
}

func TestSaveArtifact_RespectsTraceOff(t *testing.T) {
	s := newTestStore(t)
	run, _ := s.CreateRun("node1", "run1", workflow.TraceOff)
	art := s.SaveArtifact(run, "screenshot", "before_0.png", []byte("fake-png"), nil)
	if art != nil {
		t.Fatalf("expected nil artifact under TraceOff, got %+v", art)
	}
	if len(run.Artifacts) != 0 {
		t.Fatal("expected no artifacts recorded under TraceOff")
	}
}

func TestSaveArtifact_Full(t *testing.T) {
	s := newTestStore(t)
	run, _ := s.CreateRun("node1", "run1", workflow.TraceFull)
	art := s.SaveArtifact(run, "screenshot", "before_0.png", []byte("fake-png"), map[string]string{"w": "100"})
	if art == nil {
		t.Fatal("expected artifact to be saved")
	}
	if len(run.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact recorded, got %d", len(run.Artifacts))
	}
}

func TestSaveArtifact_MinimalSuppressesLargeBodies(t *testing.T) {
	s := newTestStore(t)
	run, _ := s.CreateRun("node1", "run1", workflow.TraceMinimal)
	big := make([]byte, ArtifactSizeCeilingMinimal+1)
	art := s.SaveArtifact(run, "screenshot", "before_0.png", big, nil)
	if art != nil {
		t.Fatal("expected large artifact to be suppressed under TraceMinimal")
	}
}

func TestLoadRunsForNode_SortedByStartedAt(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	orig := NowMillis
	NowMillis = func() int64 {
		calls++
		return int64(calls)
	}
	defer func() { NowMillis = orig }()

	s.CreateRun("node1", "run-b", workflow.TraceFull)
	s.CreateRun("node1", "run-a", workflow.TraceFull)

	runs, err := s.LoadRunsForNode("node1")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].StartedAt > runs[1].StartedAt {
		t.Fatal("expected runs sorted ascending by started_at")
	}
}

func TestLoadRunsForNonexistentNode(t *testing.T) {
	s := newTestStore(t)
	runs, err := s.LoadRunsForNode("nope")
	if err != nil {
		t.Fatalf("expected no error for nonexistent node dir, got %v", err)
	}
	if runs != nil {
		t.Fatalf("expected nil runs, got %v", runs)
	}
}

func TestProjectRoot_UsesDotClickweaveWhenProjectSet(t *testing.T) {
	got := ProjectRoot("/home/user/myproject")
	want := filepath.Join("/home/user/myproject", ".clickweave")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

// Package trace implements the append-only execution trace: per-node run
// directories containing run.json, events.jsonl, and artifacts/ (spec
// §4.6). Errors here are never fatal to node execution — trace fidelity is
// best-effort (spec §4.1, §7).
package trace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/clickweave-dev/clickweave/internal/workflow"
)

// Status is the terminal state of a NodeRun.
type Status string

const (
	StatusOk     Status = "Ok"
	StatusFailed Status = "Failed"
)

// Event is one line of events.jsonl: {timestamp, event_type, payload}.
type Event struct {
	Timestamp int64       `json:"timestamp"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Artifact describes one binary blob written under artifacts/.
type Artifact struct {
	ArtifactID string            `json:"artifact_id"`
	Kind       string            `json:"kind"`
	Path       string            `json:"path"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NodeRun is the per-attempt record of one node's execution.
type NodeRun struct {
	RunID          string               `json:"run_id"`
	NodeID         string               `json:"node_id"`
	StartedAt      int64                `json:"started_at"`
	EndedAt        *int64               `json:"ended_at,omitempty"`
	Status         Status               `json:"status"`
	TraceLevel     workflow.TraceLevel  `json:"trace_level"`
	Events         []Event              `json:"events"`
	Artifacts      []Artifact           `json:"artifacts"`
	ObservedSummary *string             `json:"observed_summary,omitempty"`
}

// NowMillis returns the current wall clock in epoch milliseconds. Factored
// out so callers (and their tests) can substitute a fixed clock.
var NowMillis = func() int64 { return time.Now().UnixMilli() }

// Store owns one execution directory:
// <root>/runs/<workflow_id_or_name>/<execution_timestamp>/<node_id>/<run_id>/
type Store struct {
	root string // already includes .../runs/<wf>/<timestamp>

	mu sync.Mutex
}

// ProjectRoot resolves <root> for a project path: "<project>/.clickweave"
// when a project is open, else a platform app-data directory.
func ProjectRoot(projectPath string) string {
	if projectPath != "" {
		return filepath.Join(projectPath, ".clickweave")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "clickweave")
}

// NewStore creates the execution directory for one invocation of run().
// executionTimestamp should be a sortable, filesystem-safe string (e.g.
// RFC3339 with colons replaced); callers own its formatting.
func NewStore(root, workflowIDOrName, executionTimestamp string) *Store {
	return &Store{root: filepath.Join(root, "runs", workflowIDOrName, executionTimestamp)}
}

func (s *Store) runDir(nodeID, runID string) string {
	return filepath.Join(s.root, nodeID, runID)
}

// BeginExecution creates the execution directory root and returns its
// path, mirroring the original's storage.begin_execution(): a run aborts
// before any node executes if this fails.
func (s *Store) BeginExecution() (string, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("trace: create execution directory %s: %w", s.root, err)
	}
	return s.root, nil
}

// CreateRun creates a run directory and its artifacts/ subdirectory (for
// every trace level, Off included; under Off, SaveArtifact writes no
// artifact bodies there) and returns the initial NodeRun record.
func (s *Store) CreateRun(nodeID, runID string, traceLevel workflow.TraceLevel) (*NodeRun, error) {
	dir := s.runDir(nodeID, runID)
	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	run := &NodeRun{
		RunID:      runID,
		NodeID:     nodeID,
		StartedAt:  NowMillis(),
		Status:     StatusOk,
		TraceLevel: traceLevel,
		Events:     []Event{},
		Artifacts:  []Artifact{},
	}
	s.SaveRun(run)
	return run, nil
}

// SaveRun overwrites run.json with the complete NodeRun snapshot. Failures
// are logged and swallowed: trace fidelity is best-effort and must never
// affect node semantics (spec §4.1, §7).
func (s *Store) SaveRun(run *NodeRun) {
	dir := s.runDir(run.NodeID, run.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("trace.save_run.mkdir", "error", err)
		return
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		slog.Warn("trace.save_run.marshal", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), data, 0o644); err != nil {
		slog.Warn("trace.save_run.write", "error", err)
	}
}

// AppendEvent appends one JSON line to events.jsonl and mirrors it onto the
// in-memory NodeRun.Events slice so SaveRun's next snapshot includes it.
// Trace-level Off still writes events (only artifact bodies are suppressed).
func (s *Store) AppendEvent(run *NodeRun, eventType string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Event{Timestamp: NowMillis(), EventType: eventType, Payload: payload}
	run.Events = append(run.Events, ev)

	dir := s.runDir(run.NodeID, run.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("trace.append_event.mkdir", "error", err)
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("trace.append_event.open", "error", err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("trace.append_event.marshal", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Warn("trace.append_event.write", "error", err)
	}
}

// ArtifactSizeCeilingMinimal caps artifact bodies under TraceLevel Minimal.
const ArtifactSizeCeilingMinimal = 64 * 1024

// SaveArtifact writes a binary blob under artifacts/<filename>, honoring
// trace-level suppression rules: Off writes nothing and returns a nil
// Artifact with no error; Minimal skips bodies larger than the ceiling;
// Full always writes.
func (s *Store) SaveArtifact(run *NodeRun, kind, filename string, data []byte, metadata map[string]string) *Artifact {
	if run.TraceLevel == workflow.TraceOff {
		return nil
	}
	if run.TraceLevel == workflow.TraceMinimal && len(data) > ArtifactSizeCeilingMinimal {
		slog.Warn("trace.artifact.suppressed_minimal", "node_id", run.NodeID, "run_id", run.RunID, "filename", filename, "size", len(data))
		return nil
	}

	dir := filepath.Join(s.runDir(run.NodeID, run.RunID), "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("trace.save_artifact.mkdir", "error", err)
		return nil
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("trace.save_artifact.write", "error", err)
		return nil
	}

	art := Artifact{
		ArtifactID: filename,
		Kind:       kind,
		Path:       path,
		Metadata:   metadata,
	}
	run.Artifacts = append(run.Artifacts, art)
	return &art
}

// FinalizeRun stamps ended_at and status, then saves the final snapshot.
func (s *Store) FinalizeRun(run *NodeRun, status Status) {
	ended := NowMillis()
	run.EndedAt = &ended
	run.Status = status
	s.SaveRun(run)
}

// LoadRun reads a single run.json back from disk.
func (s *Store) LoadRun(nodeID, runID string) (*NodeRun, error) {
	return readRunJSON(filepath.Join(s.runDir(nodeID, runID), "run.json"))
}

// LoadRunsForNode reads every run.json under a node's directory, sorted by
// StartedAt ascending. Malformed entries are skipped with a warning, never
// fatal, per spec §7.
func (s *Store) LoadRunsForNode(nodeID string) ([]*NodeRun, error) {
	nodeDir := filepath.Join(s.root, nodeID)
	entries, err := os.ReadDir(nodeDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read node dir %s: %w", nodeDir, err)
	}

	var runs []*NodeRun
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := readRunJSON(filepath.Join(nodeDir, e.Name(), "run.json"))
		if err != nil {
			slog.Warn("trace.load_runs.skip_malformed", "node_id", nodeID, "run_id", e.Name(), "error", err)
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt < runs[j].StartedAt })
	return runs, nil
}

func readRunJSON(path string) (*NodeRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run NodeRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

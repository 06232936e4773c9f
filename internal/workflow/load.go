package workflow

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	json5 "github.com/titanous/json5"
)

// LoadFile reads a workflow.json (or hand-edited JSON5 variant with trailing
// commas/comments) from disk. Unknown fields are ignored by both decoders;
// missing optional fields take their zero values, which ApplyDefaults then
// promotes to the documented defaults.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes workflow JSON (or JSON5), trying strict JSON first since it
// is the common case and faster, falling back to the tolerant JSON5 decoder
// for hand-edited files.
func Parse(data []byte) (*Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		var w5 Workflow
		if err5 := json5.Unmarshal(data, &w5); err5 != nil {
			return nil, fmt.Errorf("parse workflow: %w", err)
		}
		w = w5
	}
	ApplyDefaults(&w)
	return &w, nil
}

// ApplyDefaults fills in documented defaults for fields the file omitted.
func ApplyDefaults(w *Workflow) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if n.TraceLevel == "" {
			n.TraceLevel = TraceFull
		}
		if n.Kind == KindLoop && n.Loop != nil && n.Loop.MaxIterations == 0 {
			n.Loop.MaxIterations = 100
		}
	}
}

package workflow

import "fmt"

// ValidationError reports a single graph-shape defect. Validation errors are
// always fatal and always reported before execution begins.
type ValidationError struct {
	Kind string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func vErr(kind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validate checks the invariants from the data model: exactly one entry
// node, at most one outgoing edge per non-branch node, the exact required
// edge set per branch node type, and no cycles other than EndLoop->Loop
// back-edges.
func Validate(w *Workflow) error {
	if len(w.Nodes) == 0 {
		return vErr("empty_graph", "workflow has no nodes")
	}

	nodeByID := make(map[string]Node, len(w.Nodes))
	for _, n := range w.Nodes {
		nodeByID[n.ID] = n
	}

	hasIncoming := make(map[string]bool, len(w.Nodes))
	for _, e := range w.Edges {
		if _, ok := nodeByID[e.From]; !ok {
			return vErr("dangling_edge", "edge references unknown source node %q", e.From)
		}
		if _, ok := nodeByID[e.To]; !ok {
			return vErr("dangling_edge", "edge references unknown target node %q", e.To)
		}
		hasIncoming[e.To] = true
	}

	var entries []string
	for _, n := range w.Nodes {
		if !hasIncoming[n.ID] {
			entries = append(entries, n.ID)
		}
	}
	if len(entries) == 0 {
		return vErr("no_entry_point", "no node without incoming edges")
	}
	if len(entries) > 1 {
		return vErr("no_entry_point", "multiple candidate entry nodes: %v", entries)
	}

	for _, n := range w.Nodes {
		out := w.OutgoingEdges(n.ID)
		switch n.Kind {
		case KindLoop:
			if err := requireExactlyOne(n.ID, out, OutputLoopBody); err != nil {
				return err
			}
			if err := requireExactlyOne(n.ID, out, OutputLoopDone); err != nil {
				return err
			}
			if len(out) != 2 {
				return vErr("bad_branch_edges", "loop node %q must have exactly LoopBody and LoopDone edges, got %d edges", n.ID, len(out))
			}
		case KindIf:
			if err := requireExactlyOne(n.ID, out, OutputIfTrue); err != nil {
				return err
			}
			if err := requireExactlyOne(n.ID, out, OutputIfFalse); err != nil {
				return err
			}
			if len(out) != 2 {
				return vErr("bad_branch_edges", "if node %q must have exactly IfTrue and IfFalse edges, got %d edges", n.ID, len(out))
			}
		case KindEndLoop:
			if len(out) != 1 {
				return vErr("bad_branch_edges", "end_loop node %q must have exactly one outgoing edge, got %d", n.ID, len(out))
			}
			if out[0].Output != OutputNone {
				return vErr("bad_branch_edges", "end_loop node %q outgoing edge must be untagged", n.ID)
			}
			target, ok := nodeByID[out[0].To]
			if !ok || target.Kind != KindLoop {
				return vErr("endloop_mismatch", "end_loop node %q must point back to its Loop node", n.ID)
			}
			if n.EndLoop == nil || n.EndLoop.LoopID != target.ID {
				return vErr("endloop_mismatch", "end_loop node %q loop_id %v does not match back-edge target %q", n.ID, n.EndLoop, target.ID)
			}
		default:
			if len(out) > 1 {
				return vErr("too_many_outgoing", "node %q has %d outgoing edges, non-branch nodes allow at most 1", n.ID, len(out))
			}
			if len(out) == 1 && out[0].Output != OutputNone {
				return vErr("bad_branch_edges", "node %q is not a branch node but has a tagged outgoing edge %q", n.ID, out[0].Output)
			}
		}
	}

	return checkCycles(w, nodeByID)
}

func requireExactlyOne(nodeID string, edges []Edge, output EdgeOutput) error {
	count := 0
	for _, e := range edges {
		if e.Output == output {
			count++
		}
	}
	if count != 1 {
		return vErr("bad_branch_edges", "node %q must have exactly one %q edge, found %d", nodeID, output, count)
	}
	return nil
}

// checkCycles walks the graph with standard DFS coloring, permitting only
// the back-edge from an EndLoop to its paired Loop.
func checkCycles(w *Workflow, nodeByID map[string]Node) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(w.Nodes))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		n := nodeByID[id]
		for _, e := range w.OutgoingEdges(id) {
			if n.Kind == KindEndLoop {
				// the single permitted back-edge
				continue
			}
			switch color[e.To] {
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			case gray:
				return vErr("cycle_outside_loop", "cycle detected through edge %s -> %s", id, e.To)
			}
		}
		color[id] = black
		return nil
	}
	for _, n := range w.Nodes {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

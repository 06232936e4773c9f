// Package protocol defines the UI-facing wire types emitted by a run and
// the single command a UI may send back: the event/command contract of
// spec §6. Serialization format is implementation-defined; the payload
// shapes below are the part of the contract that's fixed.
package protocol

import "github.com/clickweave-dev/clickweave/internal/trace"

// State is the run loop's coarse lifecycle state.
type State string

const (
	StateIdle    State = "Idle"
	StateRunning State = "Running"
)

// EventKind tags which variant an Event carries.
type EventKind string

const (
	EventLog               EventKind = "Log"
	EventStateChanged       EventKind = "StateChanged"
	EventNodeStarted        EventKind = "NodeStarted"
	EventNodeCompleted      EventKind = "NodeCompleted"
	EventNodeFailed         EventKind = "NodeFailed"
	EventRunCreated         EventKind = "RunCreated"
	EventWorkflowCompleted EventKind = "WorkflowCompleted"
	EventError              EventKind = "Error"
)

// Event is one message on the event sink a UI drains at its own pace
// (spec §5, §6). Exactly the field(s) relevant to Kind are populated.
type Event struct {
	Kind EventKind `json:"kind"`

	Message string      `json:"message,omitempty"`  // Log, Error
	State   State       `json:"state,omitempty"`     // StateChanged
	NodeID  string      `json:"node_id,omitempty"`   // NodeStarted, NodeCompleted, NodeFailed, RunCreated
	Error   string      `json:"error,omitempty"`      // NodeFailed
	Run     *trace.NodeRun `json:"run,omitempty"`     // RunCreated
}

// Log builds an Event carrying a human-readable progress line.
func Log(msg string) Event { return Event{Kind: EventLog, Message: msg} }

// ErrorEvent builds an Event reporting a run-fatal error (spawn failure,
// execution-directory creation failure, …).
func ErrorEvent(msg string) Event { return Event{Kind: EventError, Message: msg} }

// StateChangedEvent builds an Event bracketing the run (Running at start,
// Idle at the end of the run loop by any exit path).
func StateChangedEvent(s State) Event { return Event{Kind: EventStateChanged, State: s} }

// NodeStartedEvent, NodeCompletedEvent, NodeFailedEvent, RunCreatedEvent
// build the per-node lifecycle events in the fixed order spec §5 mandates:
// NodeStarted, then interleaved Log/trace events, then NodeCompleted or
// NodeFailed.
func NodeStartedEvent(nodeID string) Event { return Event{Kind: EventNodeStarted, NodeID: nodeID} }
func NodeCompletedEvent(nodeID string) Event {
	return Event{Kind: EventNodeCompleted, NodeID: nodeID}
}
func NodeFailedEvent(nodeID, errMsg string) Event {
	return Event{Kind: EventNodeFailed, NodeID: nodeID, Error: errMsg}
}
func RunCreatedEvent(nodeID string, run *trace.NodeRun) Event {
	return Event{Kind: EventRunCreated, NodeID: nodeID, Run: run}
}

// WorkflowCompletedEvent builds the Event emitted once the graph walk
// exits normally (no node failed, no stop was requested).
func WorkflowCompletedEvent() Event { return Event{Kind: EventWorkflowCompleted} }

// EventSinkCapacity is the contractual bound on the event channel (spec
// §5): full-sink behavior is drop-newest with a warning, never block.
const EventSinkCapacity = 256

// StopChannelCapacity is the contractual bound on the stop command
// channel (spec §5).
const StopChannelCapacity = 8

// Command is the single message variant a UI may send to a running
// workflow.
type Command struct {
	Stop bool `json:"stop"`
}

// StopCommand is the sole Command value; it exists as a named constant so
// callers never need to construct the zero-value ambiguity of an empty
// struct literal at call sites.
var StopCommand = Command{Stop: true}

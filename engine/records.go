package engine

import (
	"time"

	"github.com/labelmint/mintflow/workflow"
)

// ExecutionState is the lifecycle state of one execution.
// Pending -> Running -> {Completed, Failed, Cancelled, TimedOut}.
type ExecutionState string

const (
	StatePending   ExecutionState = "pending"
	StateRunning   ExecutionState = "running"
	StateCompleted ExecutionState = "completed"
	StateFailed    ExecutionState = "failed"
	StateCancelled ExecutionState = "cancelled"
	StateTimedOut  ExecutionState = "timed_out"
)

// Terminal reports whether the state is final.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// NodeState is the resolution state of one node within an execution.
type NodeState string

const (
	NodePending   NodeState = "pending"
	NodeRunning   NodeState = "running"
	NodeCompleted NodeState = "completed"
	NodeFailed    NodeState = "failed"
	// NodeSkipped marks a node on an unchosen branch; skipped is a
	// resolution, not a failure
	NodeSkipped   NodeState = "skipped"
	NodeCancelled NodeState = "cancelled"
)

// NodeRun records one node's resolution within an execution.
type NodeRun struct {
	NodeID string            `json:"node_id"`
	Label  string            `json:"label,omitempty"`
	Kind   workflow.NodeKind `json:"kind"`
	State  NodeState         `json:"state"`
	// Attempts counts executor invocations, including retries
	Attempts   int            `json:"attempts"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
}

// Execution is the trace of one run of a definition. Every terminal
// state carries the full set of node-level errors encountered, not
// just the one that triggered a stop.
type Execution struct {
	ID                string         `json:"id"`
	DefinitionID      string         `json:"definition_id"`
	DefinitionName    string         `json:"definition_name,omitempty"`
	DefinitionVersion int            `json:"definition_version"`
	State             ExecutionState `json:"state"`
	// NodeRuns is keyed by node id
	NodeRuns map[string]*NodeRun `json:"node_runs"`
	// Variables is the final merged context snapshot
	Variables  map[string]any `json:"variables,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
}

// CountNodes returns how many node runs are in the given state.
func (e *Execution) CountNodes(state NodeState) int {
	n := 0
	for _, run := range e.NodeRuns {
		if run.State == state {
			n++
		}
	}
	return n
}

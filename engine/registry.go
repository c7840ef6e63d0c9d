package engine

import (
	"context"
	"sync"

	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// NodeResult is what an executor hands back to the scheduler on
// success. The output payload is merged into the run context keyed by
// the node's identity before any successor starts.
type NodeResult struct {
	Output map[string]any
}

// NodeExecutor performs one node kind's work. Implementations never
// mutate sibling nodes' state; all cross-node data flow goes through
// the run context. A returned error marks the node attempt failed.
type NodeExecutor interface {
	Execute(ctx context.Context, node workflow.WorkflowNode, rc *RunContext) (NodeResult, error)
}

// ExecutorFunc adapts a function to the NodeExecutor interface.
type ExecutorFunc func(ctx context.Context, node workflow.WorkflowNode, rc *RunContext) (NodeResult, error)

// Execute implements NodeExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, node workflow.WorkflowNode, rc *RunContext) (NodeResult, error) {
	return f(ctx, node, rc)
}

// Registry maps operation kinds to executor implementations. It is
// constructed once per process or per test and passed explicitly to
// the engine, so different engines may hold different executor sets.
type Registry struct {
	mu        sync.RWMutex
	executors map[workflow.NodeKind]NodeExecutor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[workflow.NodeKind]NodeExecutor)}
}

// Register associates an operation kind with an executor, replacing any
// previous registration for the kind.
func (r *Registry) Register(kind workflow.NodeKind, executor NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = executor
}

// Resolve returns the executor for a kind or a not-registered error.
func (r *Registry) Resolve(kind workflow.NodeKind) (NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[kind]
	if !ok {
		return nil, types.NewError(types.ErrNotRegistered, "no executor registered for kind "+string(kind))
	}
	return executor, nil
}

// Kinds returns the registered kinds in unspecified order.
func (r *Registry) Kinds() []workflow.NodeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]workflow.NodeKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	return kinds
}

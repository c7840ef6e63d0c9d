package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunContext is the per-execution variable store shared by all nodes in
// one run. Writes are keyed by node identity so concurrent branches
// cannot overwrite each other's output; readers work on snapshots and
// never block waiting for writers outside explicit join dependencies.
type RunContext struct {
	executionID  string
	definitionID string
	startedAt    time.Time
	logger       *zap.Logger

	mu        sync.RWMutex
	variables map[string]any
	outputs   map[string]any
	metadata  map[string]string
}

// NewRunContext creates the context for one execution. A nil logger
// falls back to a no-op logger.
func NewRunContext(executionID, definitionID string, logger *zap.Logger) *RunContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunContext{
		executionID:  executionID,
		definitionID: definitionID,
		startedAt:    time.Now(),
		logger: logger.With(
			zap.String("execution_id", executionID),
			zap.String("definition_id", definitionID),
		),
		variables: make(map[string]any),
		outputs:   make(map[string]any),
		metadata:  make(map[string]string),
	}
}

// ExecutionID returns the id of the execution this context belongs to.
func (rc *RunContext) ExecutionID() string { return rc.executionID }

// DefinitionID returns the id of the definition being executed.
func (rc *RunContext) DefinitionID() string { return rc.definitionID }

// StartedAt returns when the execution opened this context.
func (rc *RunContext) StartedAt() time.Time { return rc.startedAt }

// Logger returns the execution-scoped logger.
func (rc *RunContext) Logger() *zap.Logger { return rc.logger }

// SetVariable sets a workflow variable.
func (rc *RunContext) SetVariable(name string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.variables[name] = value
}

// Variable retrieves a workflow variable.
func (rc *RunContext) Variable(name string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.variables[name]
	return v, ok
}

// SetOutput stores a node's output under its identity.
func (rc *RunContext) SetOutput(nodeID string, output any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.outputs[nodeID] = output
}

// Output retrieves a node's output.
func (rc *RunContext) Output(nodeID string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.outputs[nodeID]
	return v, ok
}

// SetMetadata attaches a metadata entry to the execution.
func (rc *RunContext) SetMetadata(key, value string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.metadata[key] = value
}

// Metadata retrieves a metadata entry.
func (rc *RunContext) Metadata(key string) (string, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.metadata[key]
	return v, ok
}

// Snapshot returns a merged copy of variables and node outputs taken at
// call time, for expression evaluation. Node outputs are keyed by node
// id and take precedence over variables of the same name.
func (rc *RunContext) Snapshot() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	snap := make(map[string]any, len(rc.variables)+len(rc.outputs))
	for k, v := range rc.variables {
		snap[k] = v
	}
	for k, v := range rc.outputs {
		snap[k] = v
	}
	return snap
}

// Variables returns a copy of the variable store.
func (rc *RunContext) Variables() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]any, len(rc.variables))
	for k, v := range rc.variables {
		out[k] = v
	}
	return out
}

// Outputs returns a copy of the node output store.
func (rc *RunContext) Outputs() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]any, len(rc.outputs))
	for k, v := range rc.outputs {
		out[k] = v
	}
	return out
}

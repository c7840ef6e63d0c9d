package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
)

// ErrNotFound is returned when no execution exists under the requested
// id.
var ErrNotFound = types.NewError(types.ErrStorage, "execution not found")

// Query filters an execution listing. Zero values match everything;
// Limit <= 0 means no limit.
type Query struct {
	DefinitionID string
	State        engine.ExecutionState
	Limit        int
}

// Store persists execution traces. RecordExecution upserts, so a store
// can be handed to the engine as its Recorder and also used to save
// in-progress snapshots. Listings come back newest first.
type Store interface {
	engine.Recorder
	Execution(ctx context.Context, id string) (*engine.Execution, error)
	Executions(ctx context.Context, q Query) ([]*engine.Execution, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore keeps executions in process memory. It is the default
// backend for tests and single-shot CLI runs.
type MemoryStore struct {
	mu    sync.RWMutex
	execs map[string]*engine.Execution
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{execs: make(map[string]*engine.Execution)}
}

func (s *MemoryStore) RecordExecution(_ context.Context, exec *engine.Execution) error {
	if exec == nil || exec.ID == "" {
		return types.NewError(types.ErrStorage, "execution has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *MemoryStore) Execution(_ context.Context, id string) (*engine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.execs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStore) Executions(_ context.Context, q Query) ([]*engine.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*engine.Execution, 0, len(s.execs))
	for _, exec := range s.execs {
		if q.DefinitionID != "" && exec.DefinitionID != q.DefinitionID {
			continue
		}
		if q.State != "" && exec.State != q.State {
			continue
		}
		out = append(out, cloneExecution(exec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.execs[id]; !ok {
		return ErrNotFound
	}
	delete(s.execs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// cloneExecution copies the record deep enough that callers cannot
// mutate stored state through the maps.
func cloneExecution(exec *engine.Execution) *engine.Execution {
	out := *exec
	out.NodeRuns = make(map[string]*engine.NodeRun, len(exec.NodeRuns))
	for id, run := range exec.NodeRuns {
		copied := *run
		if run.Output != nil {
			copied.Output = make(map[string]any, len(run.Output))
			for k, v := range run.Output {
				copied.Output[k] = v
			}
		}
		out.NodeRuns[id] = &copied
	}
	if exec.Variables != nil {
		out.Variables = make(map[string]any, len(exec.Variables))
		for k, v := range exec.Variables {
			out.Variables[k] = v
		}
	}
	if exec.Errors != nil {
		out.Errors = append([]string(nil), exec.Errors...)
	}
	return &out
}

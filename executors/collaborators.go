package executors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// TaskBatch describes work items created by the task-management
// collaborator.
type TaskBatch struct {
	Count int
	IDs   []string
}

// TaskService is the task-management collaborator behind task nodes.
type TaskService interface {
	// CreateTasks bulk-creates labeling tasks against a project and
	// returns the created batch.
	CreateTasks(ctx context.Context, projectID string, items []any) (TaskBatch, error)
	// CreateReviewAssignments creates one review assignment per task id
	// and returns how many were created.
	CreateReviewAssignments(ctx context.Context, taskIDs []string, criteria map[string]any) (int, error)
}

// CallRequest is one outbound HTTP call.
type CallRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    any
	Auth    *workflow.AuthConfig
	Timeout time.Duration
}

// CallResponse is the outcome of an outbound HTTP call.
type CallResponse struct {
	Status  int
	Headers map[string]string
	Body    any
}

// HTTPCaller performs outbound HTTP calls for http_request nodes and
// the generic http integration provider.
type HTTPCaller interface {
	Call(ctx context.Context, req CallRequest) (CallResponse, error)
}

// Notification is one message handed to the notification collaborator.
type Notification struct {
	Channel    string
	Recipients []string
	Subject    string
	Body       string
	Template   string
	Vars       map[string]any
}

// Notifier delivers notifications on behalf of email nodes and
// execution failure alerts.
type Notifier interface {
	Send(ctx context.Context, msg Notification) error
}

// CompletionRequest is one model invocation.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the model's answer.
type Completion struct {
	Text       string
	TokensUsed int
}

// ModelClient is the AI collaborator behind ai nodes.
type ModelClient interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// RuleEvaluator evaluates named domain rules the engine does not own,
// such as annotation quality checks. Details carry rule-specific
// diagnostics into the node output.
type RuleEvaluator interface {
	EvaluateRule(ctx context.Context, rule string, input any, params map[string]any) (valid bool, details map[string]any, err error)
}

// Database runs queries for database nodes.
type Database interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Func is a registered pure function applied by custom tasks and loop
// bodies. Input is the context snapshot for tasks and the current item
// for loops.
type Func func(ctx context.Context, input any) (any, error)

// FuncRegistry holds named pure functions. Safe for concurrent use.
type FuncRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewFuncRegistry creates an empty function registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[string]Func)}
}

// Register adds or replaces a named function.
func (r *FuncRegistry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Resolve returns the named function.
func (r *FuncRegistry) Resolve(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, types.NewError(types.ErrNotRegistered, "no function registered under name "+name)
	}
	return fn, nil
}

// Names returns the registered function names, sorted.
func (r *FuncRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IntegrationProvider serves integration nodes for one named provider.
// The built-in "http" provider is handled by the HTTPCaller instead.
type IntegrationProvider interface {
	Invoke(ctx context.Context, service, action string, body any) (map[string]any, error)
}

package executors

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// Deps bundles the collaborators the built-in executors depend on.
// Unused fields may stay nil; an executor whose collaborator is missing
// fails its node with a config validation error instead of panicking.
type Deps struct {
	Tasks     TaskService
	HTTP      HTTPCaller
	Notifier  Notifier
	Model     ModelClient
	Rules     RuleEvaluator
	DB        Database
	Funcs     *FuncRegistry
	Providers map[string]IntegrationProvider
	Logger    *zap.Logger
}

func (d Deps) normalized() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Funcs == nil {
		d.Funcs = NewFuncRegistry()
	}
	return d
}

// RegisterBuiltins wires one executor per node kind into the registry.
func RegisterBuiltins(reg *engine.Registry, deps Deps) {
	deps = deps.normalized()
	reg.Register(workflow.KindTrigger, NewTriggerExecutor(deps))
	reg.Register(workflow.KindTask, NewTaskExecutor(deps))
	reg.Register(workflow.KindValidation, NewValidationExecutor(deps))
	reg.Register(workflow.KindIntegration, NewIntegrationExecutor(deps))
	reg.Register(workflow.KindAI, NewAIExecutor(deps))
	reg.Register(workflow.KindCondition, NewConditionExecutor(deps))
	reg.Register(workflow.KindDelay, NewDelayExecutor(deps))
	reg.Register(workflow.KindHTTPRequest, NewHTTPRequestExecutor(deps))
	reg.Register(workflow.KindEmail, NewEmailExecutor(deps))
	reg.Register(workflow.KindDatabase, NewDatabaseExecutor(deps))
	reg.Register(workflow.KindLoop, NewLoopExecutor(deps))
	reg.Register(workflow.KindTransform, NewTransformExecutor(deps))
}

// configAs asserts the node's config to the expected concrete type. The
// builder guarantees the pairing; a mismatch means the definition was
// assembled by hand and skipped validation.
func configAs[T workflow.NodeConfig](node workflow.WorkflowNode) (T, error) {
	cfg, ok := node.Config.(T)
	if !ok {
		var zero T
		return zero, types.NewError(types.ErrConfigValidation,
			fmt.Sprintf("node config is %T, want %T", node.Config, zero)).
			WithNodeID(node.ID)
	}
	return cfg, nil
}

// missingDep fails a node whose collaborator was never wired.
func missingDep(node workflow.WorkflowNode, name string) error {
	return types.NewError(types.ErrConfigValidation, "no "+name+" collaborator configured").
		WithNodeID(node.ID)
}

// resolvePath reads a dotted path from the run context snapshot.
func resolvePath(rc *engine.RunContext, path string) (any, bool) {
	return workflow.LookupPath(rc.Snapshot(), path)
}

// requirePath is resolvePath with a node-attributed error for absent
// paths.
func requirePath(rc *engine.RunContext, node workflow.WorkflowNode, path string) (any, error) {
	value, ok := resolvePath(rc, path)
	if !ok {
		return nil, types.NewError(types.ErrExecution,
			fmt.Sprintf("context path %q resolved to nothing", path)).
			WithNodeID(node.ID)
	}
	return value, nil
}

// contextValue resolves "$ctx." prefixed strings against the snapshot
// and passes every other value through unchanged.
func contextValue(rc *engine.RunContext, value any) any {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, "$ctx.") {
		return value
	}
	resolved, ok := resolvePath(rc, strings.TrimPrefix(s, "$ctx."))
	if !ok {
		return nil
	}
	return resolved
}

// toAnySlice coerces slice-shaped values into []any.
func toAnySlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []any:
		return v, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toStringSlice coerces slice-shaped values into []string, stringifying
// non-string elements.
func toStringSlice(value any) ([]string, bool) {
	if v, ok := value.([]string); ok {
		return v, true
	}
	items, ok := toAnySlice(value)
	if !ok {
		return nil, false
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprintf("%v", item)
	}
	return out, true
}

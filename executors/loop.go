package executors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// LoopExecutor applies a registered body function to each element of a
// context-referenced list. The iteration bound is a hard contract: more
// items than max_iterations fails the node before any work starts.
type LoopExecutor struct {
	funcs  *FuncRegistry
	logger *zap.Logger
}

func NewLoopExecutor(deps Deps) *LoopExecutor {
	deps = deps.normalized()
	return &LoopExecutor{
		funcs:  deps.Funcs,
		logger: deps.Logger.With(zap.String("executor", "loop")),
	}
}

func (e *LoopExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.LoopConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	value, err := requirePath(rc, node, cfg.ItemsFrom)
	if err != nil {
		return engine.NodeResult{}, err
	}
	items, ok := toAnySlice(value)
	if !ok {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			fmt.Sprintf("loop reference %q is not iterable", cfg.ItemsFrom)).
			WithNodeID(node.ID)
	}
	if len(items) > cfg.MaxIterations {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			fmt.Sprintf("%d items exceed the %d iteration bound", len(items), cfg.MaxIterations)).
			WithNodeID(node.ID)
	}

	var body Func
	if cfg.Body != "" {
		body, err = e.funcs.Resolve(cfg.Body)
		if err != nil {
			return engine.NodeResult{}, err
		}
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return engine.NodeResult{}, engine.ContextError(ctx)
		}
		if body == nil {
			results = append(results, item)
			continue
		}
		result, err := body(ctx, item)
		if err != nil {
			return engine.NodeResult{}, types.NewError(types.ErrExecution,
				fmt.Sprintf("iteration %d failed", i)).
				WithNodeID(node.ID).
				WithCause(err)
		}
		results = append(results, result)
	}

	e.logger.Debug("loop finished",
		zap.String("node_id", node.ID),
		zap.Int("iterations", len(items)),
	)
	return engine.NodeResult{Output: map[string]any{
		"results": results,
		"count":   len(results),
	}}, nil
}

package executors

import (
	"context"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
	"github.com/labelmint/mintflow/workflow/expr"
)

// ConditionExecutor evaluates a boolean expression over the context
// snapshot. Routing happens on the guards of the node's outgoing edges,
// which read the result from this node's output.
type ConditionExecutor struct {
	logger *zap.Logger
}

func NewConditionExecutor(deps Deps) *ConditionExecutor {
	deps = deps.normalized()
	return &ConditionExecutor{logger: deps.Logger.With(zap.String("executor", "condition"))}
}

func (e *ConditionExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.ConditionConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	result, err := expr.EvaluateBool(cfg.Expression, rc.Snapshot())
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExpression, "condition evaluation failed").
			WithNodeID(node.ID).
			WithCause(err)
	}

	e.logger.Debug("condition evaluated",
		zap.String("node_id", node.ID),
		zap.String("expression", cfg.Expression),
		zap.Bool("result", result),
	)
	return engine.NodeResult{Output: map[string]any{
		"result":     result,
		"expression": cfg.Expression,
	}}, nil
}

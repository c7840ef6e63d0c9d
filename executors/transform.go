package executors

import (
	"context"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
	"github.com/labelmint/mintflow/workflow/expr"
)

// TransformExecutor computes a value from the context snapshot and
// optionally stores it as a named variable for later nodes.
type TransformExecutor struct {
	logger *zap.Logger
}

func NewTransformExecutor(deps Deps) *TransformExecutor {
	deps = deps.normalized()
	return &TransformExecutor{logger: deps.Logger.With(zap.String("executor", "transform"))}
}

func (e *TransformExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.TransformConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	result, err := expr.Evaluate(cfg.Expression, rc.Snapshot())
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExpression, "transform evaluation failed").
			WithNodeID(node.ID).
			WithCause(err)
	}

	if cfg.OutputVar != "" {
		rc.SetVariable(cfg.OutputVar, result)
	}

	e.logger.Debug("transform applied",
		zap.String("node_id", node.ID),
		zap.String("expression", cfg.Expression),
	)
	return engine.NodeResult{Output: map[string]any{"result": result}}, nil
}

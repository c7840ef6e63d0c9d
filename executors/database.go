package executors

import (
	"context"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// DatabaseExecutor runs parameterized statements through the database
// collaborator. Argument strings prefixed with "$ctx." resolve from the
// context snapshot before binding.
type DatabaseExecutor struct {
	db     Database
	logger *zap.Logger
}

func NewDatabaseExecutor(deps Deps) *DatabaseExecutor {
	deps = deps.normalized()
	return &DatabaseExecutor{
		db:     deps.DB,
		logger: deps.Logger.With(zap.String("executor", "database")),
	}
}

func (e *DatabaseExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.DatabaseConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}
	if e.db == nil {
		return engine.NodeResult{}, missingDep(node, "database")
	}

	args := make([]any, len(cfg.Args))
	for i, arg := range cfg.Args {
		args[i] = contextValue(rc, arg)
	}

	if cfg.Operation == "exec" {
		affected, err := e.db.Exec(ctx, cfg.Query, args...)
		if err != nil {
			return engine.NodeResult{}, types.NewError(types.ErrStorage, "statement execution failed").
				WithNodeID(node.ID).
				WithRetryable(true).
				WithCause(err)
		}
		e.logger.Debug("statement executed",
			zap.String("node_id", node.ID),
			zap.Int64("affected", affected),
		)
		return engine.NodeResult{Output: map[string]any{"affected": affected}}, nil
	}

	rows, err := e.db.Query(ctx, cfg.Query, args...)
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrStorage, "query failed").
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}

	e.logger.Debug("query finished",
		zap.String("node_id", node.ID),
		zap.Int("rows", len(rows)),
	)
	return engine.NodeResult{Output: map[string]any{
		"rows":  rows,
		"count": len(rows),
	}}, nil
}

package executors

import (
	"context"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// TaskExecutor creates externally tracked work through the
// task-management collaborator, or runs registered pure functions for
// custom tasks.
type TaskExecutor struct {
	tasks  TaskService
	rules  RuleEvaluator
	funcs  *FuncRegistry
	logger *zap.Logger
}

func NewTaskExecutor(deps Deps) *TaskExecutor {
	deps = deps.normalized()
	return &TaskExecutor{
		tasks:  deps.Tasks,
		rules:  deps.Rules,
		funcs:  deps.Funcs,
		logger: deps.Logger.With(zap.String("executor", "task")),
	}
}

func (e *TaskExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.TaskConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	switch cfg.Type {
	case workflow.TaskLabeling:
		return e.createLabelingTasks(ctx, node, rc, cfg)
	case workflow.TaskReview:
		return e.createReviewAssignments(ctx, node, rc, cfg)
	case workflow.TaskValidation:
		return e.runValidationRule(ctx, node, rc, cfg)
	case workflow.TaskCustom:
		return e.runCustomFunction(ctx, node, rc, cfg)
	default:
		return engine.NodeResult{}, types.NewError(types.ErrConfigValidation,
			"unknown task type "+string(cfg.Type)).WithNodeID(node.ID)
	}
}

func (e *TaskExecutor) createLabelingTasks(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext, cfg *workflow.TaskConfig) (engine.NodeResult, error) {
	if e.tasks == nil {
		return engine.NodeResult{}, missingDep(node, "task service")
	}

	var items []any
	if cfg.ItemsFrom != "" {
		value, err := requirePath(rc, node, cfg.ItemsFrom)
		if err != nil {
			return engine.NodeResult{}, err
		}
		coerced, ok := toAnySlice(value)
		if !ok {
			return engine.NodeResult{}, types.NewError(types.ErrExecution,
				"items reference did not resolve to a list").WithNodeID(node.ID)
		}
		items = coerced
	}

	batch, err := e.tasks.CreateTasks(ctx, cfg.ProjectID, items)
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution, "task creation failed").
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}

	e.logger.Info("labeling tasks created",
		zap.String("node_id", node.ID),
		zap.String("project_id", cfg.ProjectID),
		zap.Int("count", batch.Count),
	)
	return engine.NodeResult{Output: map[string]any{
		"count":      batch.Count,
		"ids":        batch.IDs,
		"project_id": cfg.ProjectID,
	}}, nil
}

func (e *TaskExecutor) createReviewAssignments(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext, cfg *workflow.TaskConfig) (engine.NodeResult, error) {
	if e.tasks == nil {
		return engine.NodeResult{}, missingDep(node, "task service")
	}

	value, err := requirePath(rc, node, cfg.TaskIDsFrom)
	if err != nil {
		return engine.NodeResult{}, err
	}
	taskIDs, ok := toStringSlice(value)
	if !ok {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			"task ids reference did not resolve to a list").WithNodeID(node.ID)
	}
	if len(taskIDs) == 0 {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			"review requires at least one task id").WithNodeID(node.ID)
	}

	count, err := e.tasks.CreateReviewAssignments(ctx, taskIDs, cfg.Criteria)
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution, "review assignment failed").
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}

	e.logger.Info("review assignments created",
		zap.String("node_id", node.ID),
		zap.Int("count", count),
	)
	return engine.NodeResult{Output: map[string]any{
		"count":    count,
		"task_ids": taskIDs,
	}}, nil
}

func (e *TaskExecutor) runValidationRule(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext, cfg *workflow.TaskConfig) (engine.NodeResult, error) {
	if e.rules == nil {
		return engine.NodeResult{}, missingDep(node, "rule evaluator")
	}

	valid, details, err := e.rules.EvaluateRule(ctx, cfg.Rule, rc.Snapshot(), cfg.Criteria)
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution, "rule evaluation failed").
			WithNodeID(node.ID).
			WithCause(err)
	}

	output := map[string]any{"valid": valid, "rule": cfg.Rule}
	for k, v := range details {
		output[k] = v
	}
	return engine.NodeResult{Output: output}, nil
}

func (e *TaskExecutor) runCustomFunction(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext, cfg *workflow.TaskConfig) (engine.NodeResult, error) {
	fn, err := e.funcs.Resolve(cfg.Function)
	if err != nil {
		return engine.NodeResult{}, err
	}

	result, err := fn(ctx, rc.Snapshot())
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			"function "+cfg.Function+" failed").
			WithNodeID(node.ID).
			WithCause(err)
	}
	return engine.NodeResult{Output: map[string]any{
		"result":   result,
		"function": cfg.Function,
	}}, nil
}

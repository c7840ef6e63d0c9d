package executors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
	"github.com/labelmint/mintflow/workflow/expr"
)

// defaultPollInterval paces until-condition delays that do not declare
// their own.
const defaultPollInterval = time.Second

// DelayExecutor suspends a path for a fixed duration, until an absolute
// timestamp, or until a polled condition over the context becomes true.
// Every wait observes the execution's cancellation signal.
type DelayExecutor struct {
	logger *zap.Logger
}

func NewDelayExecutor(deps Deps) *DelayExecutor {
	deps = deps.normalized()
	return &DelayExecutor{logger: deps.Logger.With(zap.String("executor", "delay"))}
}

func (e *DelayExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.DelayConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	switch cfg.Mode {
	case workflow.DelayFixed:
		wait, err := cfg.Wait()
		if err != nil {
			return engine.NodeResult{}, types.NewError(types.ErrConfigValidation, "invalid delay").
				WithNodeID(node.ID).
				WithCause(err)
		}
		return e.sleep(ctx, node, cfg.Mode, wait)

	case workflow.DelayUntil:
		wait := time.Until(cfg.Until)
		if wait < 0 {
			wait = 0
		}
		return e.sleep(ctx, node, cfg.Mode, wait)

	case workflow.DelayUntilCondition:
		return e.waitForCondition(ctx, node, rc, cfg)

	default:
		return engine.NodeResult{}, types.NewError(types.ErrConfigValidation,
			"unknown delay mode "+string(cfg.Mode)).WithNodeID(node.ID)
	}
}

func (e *DelayExecutor) sleep(ctx context.Context, node workflow.WorkflowNode, mode workflow.DelayMode, wait time.Duration) (engine.NodeResult, error) {
	e.logger.Debug("delaying path",
		zap.String("node_id", node.ID),
		zap.String("mode", string(mode)),
		zap.Duration("wait", wait),
	)
	if err := engine.SleepContext(ctx, wait); err != nil {
		return engine.NodeResult{}, err
	}
	return engine.NodeResult{Output: map[string]any{
		"mode":      string(mode),
		"waited_ms": wait.Milliseconds(),
	}}, nil
}

// waitForCondition polls the expression against a fresh snapshot every
// interval. The condition never sees stale data: concurrent branches
// may satisfy it while this path sleeps.
func (e *DelayExecutor) waitForCondition(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext, cfg *workflow.DelayConfig) (engine.NodeResult, error) {
	prog, err := expr.Parse(cfg.Condition)
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExpression, "invalid delay condition").
			WithNodeID(node.ID).
			WithCause(err)
	}

	poll := cfg.PollInterval.Std()
	if poll <= 0 {
		poll = defaultPollInterval
	}
	deadline := time.Now().Add(cfg.MaxWait.Std())
	started := time.Now()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for polls := 1; ; polls++ {
		satisfied, err := prog.EvalBool(rc.Snapshot())
		if err != nil {
			return engine.NodeResult{}, types.NewError(types.ErrExpression, "delay condition evaluation failed").
				WithNodeID(node.ID).
				WithCause(err)
		}
		if satisfied {
			waited := time.Since(started)
			e.logger.Debug("delay condition satisfied",
				zap.String("node_id", node.ID),
				zap.Int("polls", polls),
				zap.Duration("waited", waited),
			)
			return engine.NodeResult{Output: map[string]any{
				"mode":      string(cfg.Mode),
				"satisfied": true,
				"polls":     polls,
				"waited_ms": waited.Milliseconds(),
			}}, nil
		}
		if !time.Now().Before(deadline) {
			return engine.NodeResult{}, types.NewError(types.ErrTimeout,
				"condition not satisfied within "+cfg.MaxWait.String()).
				WithNodeID(node.ID)
		}

		select {
		case <-ctx.Done():
			return engine.NodeResult{}, engine.ContextError(ctx)
		case <-ticker.C:
		}
	}
}

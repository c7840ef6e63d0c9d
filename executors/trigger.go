package executors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/workflow"
)

// TriggerExecutor starts an execution path. Scheduling, webhook routing
// and event subscription live outside the engine; by the time a trigger
// node runs the decision to fire has already been made, so the executor
// records how the run started and surfaces any inbound payload.
type TriggerExecutor struct {
	logger *zap.Logger
}

func NewTriggerExecutor(deps Deps) *TriggerExecutor {
	deps = deps.normalized()
	return &TriggerExecutor{logger: deps.Logger.With(zap.String("executor", "trigger"))}
}

func (e *TriggerExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.TriggerConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	output := map[string]any{
		"triggered_by": string(cfg.Type),
		"fired_at":     time.Now().UTC().Format(time.RFC3339),
	}
	switch cfg.Type {
	case workflow.TriggerSchedule:
		output["recurrence"] = cfg.Recurrence
	case workflow.TriggerWebhook:
		output["path"] = cfg.Path
		output["verb"] = cfg.Verb
		if payload, ok := rc.Variable("payload"); ok {
			output["payload"] = payload
		}
	case workflow.TriggerEvent:
		output["event_type"] = cfg.EventType
		output["event_source"] = cfg.EventSource
		if payload, ok := rc.Variable("payload"); ok {
			output["payload"] = payload
		}
	}

	e.logger.Debug("trigger fired",
		zap.String("node_id", node.ID),
		zap.String("trigger_type", string(cfg.Type)),
	)
	return engine.NodeResult{Output: output}, nil
}

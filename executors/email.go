package executors

import (
	"context"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// EmailExecutor hands messages to the notification collaborator.
// Template variables are dotted context paths resolved at send time.
type EmailExecutor struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewEmailExecutor(deps Deps) *EmailExecutor {
	deps = deps.normalized()
	return &EmailExecutor{
		notifier: deps.Notifier,
		logger:   deps.Logger.With(zap.String("executor", "email")),
	}
}

func (e *EmailExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.EmailConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}
	if e.notifier == nil {
		return engine.NodeResult{}, missingDep(node, "notifier")
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "email"
	}

	vars := make(map[string]any, len(cfg.Vars))
	for name, path := range cfg.Vars {
		if value, ok := resolvePath(rc, path); ok {
			vars[name] = value
		}
	}

	err = e.notifier.Send(ctx, Notification{
		Channel:    channel,
		Recipients: cfg.Recipients,
		Subject:    cfg.Subject,
		Body:       cfg.Body,
		Template:   cfg.Template,
		Vars:       vars,
	})
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution, "notification delivery failed").
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}

	e.logger.Info("notification sent",
		zap.String("node_id", node.ID),
		zap.String("channel", channel),
		zap.Int("recipients", len(cfg.Recipients)),
	)
	return engine.NodeResult{Output: map[string]any{
		"sent":       true,
		"channel":    channel,
		"recipients": len(cfg.Recipients),
	}}, nil
}

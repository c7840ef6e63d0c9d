package executors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// IntegrationExecutor dispatches integration nodes to the provider
// named in the config. The generic "http" provider goes through the
// HTTP caller; every other provider must be wired into Deps.Providers.
type IntegrationExecutor struct {
	http      HTTPCaller
	providers map[string]IntegrationProvider
	logger    *zap.Logger
}

func NewIntegrationExecutor(deps Deps) *IntegrationExecutor {
	deps = deps.normalized()
	return &IntegrationExecutor{
		http:      deps.HTTP,
		providers: deps.Providers,
		logger:    deps.Logger.With(zap.String("executor", "integration")),
	}
}

func (e *IntegrationExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.IntegrationConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	if cfg.Provider == "http" {
		return e.callHTTP(ctx, node, rc, cfg)
	}

	provider, ok := e.providers[cfg.Provider]
	if !ok {
		return engine.NodeResult{}, types.NewError(types.ErrNotRegistered,
			"no integration provider registered under name "+cfg.Provider).
			WithNodeID(node.ID)
	}

	body := contextValue(rc, cfg.Body)
	result, err := provider.Invoke(ctx, cfg.Service, cfg.Action, body)
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			fmt.Sprintf("provider %s rejected %s/%s", cfg.Provider, cfg.Service, cfg.Action)).
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}

	output := map[string]any{
		"provider": cfg.Provider,
		"service":  cfg.Service,
		"action":   cfg.Action,
	}
	for k, v := range result {
		output[k] = v
	}
	e.logger.Info("integration dispatched",
		zap.String("node_id", node.ID),
		zap.String("provider", cfg.Provider),
		zap.String("service", cfg.Service),
		zap.String("action", cfg.Action),
	)
	return engine.NodeResult{Output: output}, nil
}

func (e *IntegrationExecutor) callHTTP(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext, cfg *workflow.IntegrationConfig) (engine.NodeResult, error) {
	if e.http == nil {
		return engine.NodeResult{}, missingDep(node, "http caller")
	}

	resp, err := e.http.Call(ctx, CallRequest{
		URL:     cfg.Endpoint,
		Method:  cfg.Method,
		Headers: cfg.Headers,
		Body:    contextValue(rc, cfg.Body),
		Auth:    cfg.Auth,
		Timeout: cfg.Timeout.Std(),
	})
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution, "http integration call failed").
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			fmt.Sprintf("endpoint returned status %d", resp.Status)).
			WithNodeID(node.ID).
			WithRetryable(resp.Status >= 500)
	}

	return engine.NodeResult{Output: map[string]any{
		"provider": "http",
		"status":   resp.Status,
		"headers":  resp.Headers,
		"body":     resp.Body,
	}}, nil
}

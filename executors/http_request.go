package executors

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// HTTPRequestExecutor performs a generic outbound HTTP call through the
// HTTP caller collaborator. Responses outside 2xx fail the node; 5xx
// failures are marked retryable.
type HTTPRequestExecutor struct {
	http   HTTPCaller
	logger *zap.Logger
}

func NewHTTPRequestExecutor(deps Deps) *HTTPRequestExecutor {
	deps = deps.normalized()
	return &HTTPRequestExecutor{
		http:   deps.HTTP,
		logger: deps.Logger.With(zap.String("executor", "http_request")),
	}
}

func (e *HTTPRequestExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.HTTPRequestConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}
	if e.http == nil {
		return engine.NodeResult{}, missingDep(node, "http caller")
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := e.http.Call(ctx, CallRequest{
		URL:     cfg.URL,
		Method:  method,
		Headers: cfg.Headers,
		Body:    contextValue(rc, cfg.Body),
		Auth:    cfg.Auth,
		Timeout: cfg.Timeout.Std(),
	})
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution, "http request failed").
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}

	e.logger.Debug("http request finished",
		zap.String("node_id", node.ID),
		zap.String("method", method),
		zap.String("url", cfg.URL),
		zap.Int("status", resp.Status),
	)
	if resp.Status < 200 || resp.Status > 299 {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			fmt.Sprintf("endpoint returned status %d", resp.Status)).
			WithNodeID(node.ID).
			WithRetryable(resp.Status >= 500)
	}

	return engine.NodeResult{Output: map[string]any{
		"status":  resp.Status,
		"headers": resp.Headers,
		"body":    resp.Body,
	}}, nil
}

package executors

import (
	"context"

	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// ValidationExecutor checks data in the run context against a named
// rule or inline field constraints. A failed check is a result, not an
// error: the node completes with valid=false and downstream guards
// decide what happens.
type ValidationExecutor struct {
	rules  RuleEvaluator
	logger *zap.Logger
}

func NewValidationExecutor(deps Deps) *ValidationExecutor {
	deps = deps.normalized()
	return &ValidationExecutor{
		rules:  deps.Rules,
		logger: deps.Logger.With(zap.String("executor", "validation")),
	}
}

func (e *ValidationExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.ValidationConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}

	input, err := e.resolveInput(rc, node, cfg)
	if err != nil {
		return engine.NodeResult{}, err
	}

	output := map[string]any{"valid": true}
	if cfg.Rule != "" {
		valid, details, err := e.applyNamedRule(ctx, node, cfg, input)
		if err != nil {
			return engine.NodeResult{}, err
		}
		output["rule"] = cfg.Rule
		for k, v := range details {
			output[k] = v
		}
		if !valid {
			output["valid"] = false
		}
	}
	if len(cfg.Rules) > 0 {
		data, ok := input.(map[string]any)
		if !ok {
			return engine.NodeResult{}, types.NewError(types.ErrExecution,
				"inline rules need object-shaped input").WithNodeID(node.ID)
		}
		violations := workflow.EvaluateRules(cfg.Rules, data)
		if len(violations) > 0 {
			output["valid"] = false
			output["violations"] = violations
		}
	}

	e.logger.Debug("validation evaluated",
		zap.String("node_id", node.ID),
		zap.Bool("valid", output["valid"].(bool)),
	)
	return engine.NodeResult{Output: output}, nil
}

func (e *ValidationExecutor) resolveInput(rc *engine.RunContext, node workflow.WorkflowNode, cfg *workflow.ValidationConfig) (any, error) {
	if cfg.InputFrom == "" {
		return rc.Snapshot(), nil
	}
	return requirePath(rc, node, cfg.InputFrom)
}

// applyNamedRule handles the built-in consensus rule locally and hands
// every other rule name to the pluggable evaluator.
func (e *ValidationExecutor) applyNamedRule(ctx context.Context, node workflow.WorkflowNode, cfg *workflow.ValidationConfig, input any) (bool, map[string]any, error) {
	if cfg.Rule == "consensus" {
		count := annotationCount(input)
		valid := count >= cfg.MinConsensus
		return valid, map[string]any{
			"count":         count,
			"min_consensus": cfg.MinConsensus,
		}, nil
	}

	if e.rules == nil {
		return false, nil, missingDep(node, "rule evaluator")
	}
	valid, details, err := e.rules.EvaluateRule(ctx, cfg.Rule, input, nil)
	if err != nil {
		return false, nil, types.NewError(types.ErrExecution, "rule evaluation failed").
			WithNodeID(node.ID).
			WithCause(err)
	}
	return valid, details, nil
}

// annotationCount extracts how many annotations the input carries: a
// numeric "count" field on object input, otherwise the input's length.
func annotationCount(input any) int {
	switch v := input.(type) {
	case map[string]any:
		if raw, ok := v["count"]; ok {
			if f, ok := toFloatValue(raw); ok {
				return int(f)
			}
		}
		if items, ok := v["items"]; ok {
			if list, ok := toAnySlice(items); ok {
				return len(list)
			}
		}
		return 0
	default:
		if list, ok := toAnySlice(input); ok {
			return len(list)
		}
		return 0
	}
}

func toFloatValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

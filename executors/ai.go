package executors

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/types"
	"github.com/labelmint/mintflow/workflow"
)

// modelEncodings maps model name prefixes to tiktoken encodings,
// longest prefix first.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5-turbo", "cl100k_base"},
}

// AIExecutor runs ai nodes through the model collaborator, enforcing
// the configured token budget on the prompt before spending money on
// the call.
type AIExecutor struct {
	model  ModelClient
	logger *zap.Logger

	encMu    sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

func NewAIExecutor(deps Deps) *AIExecutor {
	deps = deps.normalized()
	return &AIExecutor{
		model:    deps.Model,
		logger:   deps.Logger.With(zap.String("executor", "ai")),
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

func (e *AIExecutor) Execute(ctx context.Context, node workflow.WorkflowNode, rc *engine.RunContext) (engine.NodeResult, error) {
	cfg, err := configAs[*workflow.AIConfig](node)
	if err != nil {
		return engine.NodeResult{}, err
	}
	if e.model == nil {
		return engine.NodeResult{}, missingDep(node, "model client")
	}

	prompt := cfg.Prompt
	if cfg.PromptFrom != "" {
		value, err := requirePath(rc, node, cfg.PromptFrom)
		if err != nil {
			return engine.NodeResult{}, err
		}
		prompt = fmt.Sprintf("%v", value)
	}

	promptTokens := e.countTokens(cfg.Model, prompt)
	if cfg.TokenBudget > 0 && promptTokens > cfg.TokenBudget {
		return engine.NodeResult{}, types.NewError(types.ErrExecution,
			fmt.Sprintf("prompt needs %d tokens, budget is %d", promptTokens, cfg.TokenBudget)).
			WithNodeID(node.ID)
	}

	completion, err := e.model.Complete(ctx, CompletionRequest{
		Model:       cfg.Model,
		Prompt:      prompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return engine.NodeResult{}, types.NewError(types.ErrExecution, "model completion failed").
			WithNodeID(node.ID).
			WithRetryable(true).
			WithCause(err)
	}

	e.logger.Info("completion produced",
		zap.String("node_id", node.ID),
		zap.String("model", cfg.Model),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("tokens_used", completion.TokensUsed),
	)
	return engine.NodeResult{Output: map[string]any{
		"text":          completion.Text,
		"model":         cfg.Model,
		"prompt_tokens": promptTokens,
		"tokens_used":   completion.TokensUsed,
	}}, nil
}

// countTokens counts prompt tokens with the model's tiktoken encoding,
// falling back to the length/4 estimate when the encoding is
// unavailable.
func (e *AIExecutor) countTokens(model, prompt string) int {
	enc, err := e.encodingFor(model)
	if err != nil {
		return len(prompt) / 4
	}
	return len(enc.Encode(prompt, nil, nil))
}

func (e *AIExecutor) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	name := "cl100k_base"
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			name = m.encoding
			break
		}
	}

	e.encMu.Lock()
	defer e.encMu.Unlock()
	if enc, ok := e.encoders[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	e.encoders[name] = enc
	return enc, nil
}

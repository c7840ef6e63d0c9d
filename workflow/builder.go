package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Builder assembles a WorkflowDefinition through a fluent API. Build
// validates every structural invariant and either returns the immutable
// definition or a structural error listing every violation found, never
// a partially valid graph.
type Builder struct {
	id        string
	name      string
	version   int
	nodes     []WorkflowNode
	edges     []WorkflowEdge
	variables []WorkflowVariable
	settings  WorkflowSettings
	logger    *zap.Logger
}

// NewBuilder creates a builder for a fresh definition at version 1.
func NewBuilder(name string) *Builder {
	logger, _ := zap.NewProduction()
	return &Builder{
		id:      uuid.New().String(),
		name:    name,
		version: 1,
		logger:  logger.With(zap.String("component", "workflow_builder")),
	}
}

// Edit seeds a builder from an existing definition with the version
// bumped, leaving the original untouched.
func Edit(def *WorkflowDefinition) *Builder {
	b := NewBuilder(def.Name)
	b.id = def.ID
	b.version = def.Version + 1
	b.nodes = append(b.nodes, def.Nodes...)
	b.edges = append(b.edges, def.Edges...)
	b.variables = append(b.variables, def.Variables...)
	b.settings = def.Settings
	return b
}

// WithID overrides the generated definition id.
func (b *Builder) WithID(id string) *Builder {
	b.id = id
	return b
}

// WithLogger sets a custom logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger.With(zap.String("component", "workflow_builder"))
	return b
}

// WithTimeout sets the absolute wall-clock budget for one execution.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.settings.Timeout = Duration(d)
	return b
}

// WithRetry sets the per-node retry policy.
func (b *Builder) WithRetry(p RetryPolicy) *Builder {
	b.settings.Retry = p
	return b
}

// WithErrorHandling sets the stop or continue strategy.
func (b *Builder) WithErrorHandling(h ErrorHandling) *Builder {
	b.settings.ErrorHandling = h
	return b
}

// DeclareVariable declares a definition-wide variable.
func (b *Builder) DeclareVariable(name string, t ValueType, def any) *Builder {
	b.variables = append(b.variables, WorkflowVariable{
		ID:      uuid.New().String(),
		Name:    name,
		Type:    t,
		Default: def,
	})
	return b
}

// AddNode appends a pre-built node, wiring an edge from each given
// source, and returns the node id.
func (b *Builder) AddNode(node WorkflowNode, sources ...string) string {
	b.nodes = append(b.nodes, node)
	for _, src := range sources {
		b.AddEdge(src, node.ID)
	}
	return node.ID
}

// AddTrigger appends a trigger node and returns its id.
func (b *Builder) AddTrigger(label string, cfg TriggerConfig) string {
	return b.AddNode(NewTriggerNode(label, cfg))
}

// AddTask appends a task node and returns its id.
func (b *Builder) AddTask(label string, cfg TaskConfig, sources ...string) string {
	return b.AddNode(NewTaskNode(label, cfg), sources...)
}

// AddValidation appends a validation node and returns its id.
func (b *Builder) AddValidation(label string, cfg ValidationConfig, sources ...string) string {
	return b.AddNode(NewValidationNode(label, cfg), sources...)
}

// AddIntegration appends an integration node and returns its id.
func (b *Builder) AddIntegration(label string, cfg IntegrationConfig, sources ...string) string {
	return b.AddNode(NewIntegrationNode(label, cfg), sources...)
}

// AddAI appends an AI operation node and returns its id.
func (b *Builder) AddAI(label string, cfg AIConfig, sources ...string) string {
	return b.AddNode(NewAINode(label, cfg), sources...)
}

// AddCondition appends a condition node and returns its id.
func (b *Builder) AddCondition(label string, cfg ConditionConfig, sources ...string) string {
	return b.AddNode(NewConditionNode(label, cfg), sources...)
}

// AddDelay appends a delay node and returns its id.
func (b *Builder) AddDelay(label string, cfg DelayConfig, sources ...string) string {
	return b.AddNode(NewDelayNode(label, cfg), sources...)
}

// AddHTTPRequest appends an http_request node and returns its id.
func (b *Builder) AddHTTPRequest(label string, cfg HTTPRequestConfig, sources ...string) string {
	return b.AddNode(NewHTTPRequestNode(label, cfg), sources...)
}

// AddEmail appends an email node and returns its id.
func (b *Builder) AddEmail(label string, cfg EmailConfig, sources ...string) string {
	return b.AddNode(NewEmailNode(label, cfg), sources...)
}

// AddDatabase appends a database node and returns its id.
func (b *Builder) AddDatabase(label string, cfg DatabaseConfig, sources ...string) string {
	return b.AddNode(NewDatabaseNode(label, cfg), sources...)
}

// AddLoop appends a loop node and returns its id.
func (b *Builder) AddLoop(label string, cfg LoopConfig, sources ...string) string {
	return b.AddNode(NewLoopNode(label, cfg), sources...)
}

// AddTransform appends a data transform node and returns its id.
func (b *Builder) AddTransform(label string, cfg TransformConfig, sources ...string) string {
	return b.AddNode(NewTransformNode(label, cfg), sources...)
}

// AddEdge adds an unguarded edge.
func (b *Builder) AddEdge(source, target string) *Builder {
	return b.AddGuardedEdge(source, target, "")
}

// AddGuardedEdge adds an edge traversed only when the guard expression
// evaluates true against the context at traversal time.
func (b *Builder) AddGuardedEdge(source, target, guard string) *Builder {
	b.edges = append(b.edges, WorkflowEdge{
		ID:     uuid.New().String(),
		Source: source,
		Target: target,
		Guard:  guard,
	})
	return b
}

// AddConditionBranches wires a condition node's true and false outputs
// to the given targets through guarded edges over the condition's
// recorded result. Either target may be empty to leave that branch
// unwired.
func (b *Builder) AddConditionBranches(conditionID, trueTarget, falseTarget string) *Builder {
	if trueTarget != "" {
		b.AddGuardedEdge(conditionID, trueTarget, fmt.Sprintf("%s.result == true", conditionID))
	}
	if falseTarget != "" {
		b.AddGuardedEdge(conditionID, falseTarget, fmt.Sprintf("%s.result == false", conditionID))
	}
	return b
}

// Build validates every invariant and returns the immutable definition.
// All violations are collected; a failing definition is never returned.
func (b *Builder) Build() (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{
		ID:        b.id,
		Name:      b.name,
		Version:   b.version,
		Nodes:     append([]WorkflowNode(nil), b.nodes...),
		Edges:     append([]WorkflowEdge(nil), b.edges...),
		Variables: append([]WorkflowVariable(nil), b.variables...),
		Settings:  normalizeSettings(b.settings),
	}

	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}

	b.logger.Info("workflow definition built",
		zap.String("definition_id", def.ID),
		zap.String("name", def.Name),
		zap.Int("version", def.Version),
		zap.Int("nodes", len(def.Nodes)),
		zap.Int("edges", len(def.Edges)),
	)

	return def, nil
}

// normalizeSettings fills policy defaults so the engine never has to.
func normalizeSettings(s WorkflowSettings) WorkflowSettings {
	if s.Retry.MaxAttempts < 1 {
		s.Retry.MaxAttempts = 1
	}
	if s.Retry.Backoff == "" {
		s.Retry.Backoff = BackoffFixed
	}
	if s.ErrorHandling.Strategy == "" {
		s.ErrorHandling.Strategy = StrategyStop
	}
	return s
}

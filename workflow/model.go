package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NodeKind identifies the operation a node performs.
type NodeKind string

const (
	// KindTrigger starts an execution (manual, schedule, webhook, event)
	KindTrigger NodeKind = "trigger"
	// KindTask creates externally tracked work items
	KindTask NodeKind = "task"
	// KindValidation evaluates declared rules against input data
	KindValidation NodeKind = "validation"
	// KindIntegration dispatches to a named provider/service/action
	KindIntegration NodeKind = "integration"
	// KindAI invokes a model completion
	KindAI NodeKind = "ai"
	// KindCondition routes to a true or false branch
	KindCondition NodeKind = "condition"
	// KindDelay suspends the path for a computed duration
	KindDelay NodeKind = "delay"
	// KindHTTPRequest performs a generic HTTP call
	KindHTTPRequest NodeKind = "http_request"
	// KindEmail sends a notification through the configured channel
	KindEmail NodeKind = "email"
	// KindDatabase runs a query against the configured database
	KindDatabase NodeKind = "database"
	// KindLoop iterates a body function over an iterable
	KindLoop NodeKind = "loop"
	// KindTransform maps input data through an expression
	KindTransform NodeKind = "transform"
)

// NodeKinds lists every kind in the closed enumeration.
func NodeKinds() []NodeKind {
	return []NodeKind{
		KindTrigger, KindTask, KindValidation, KindIntegration,
		KindAI, KindCondition, KindDelay, KindHTTPRequest,
		KindEmail, KindDatabase, KindLoop, KindTransform,
	}
}

// ValueType declares the type a port or variable carries.
type ValueType string

const (
	ValueObject  ValueType = "object"
	ValueArray   ValueType = "array"
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueAny     ValueType = "any"
)

// BackoffType selects how the pause between retry attempts grows.
type BackoffType string

const (
	// BackoffFixed pauses for the initial delay on every attempt
	BackoffFixed BackoffType = "fixed"
	// BackoffExponential doubles the pause after each failed attempt
	BackoffExponential BackoffType = "exponential"
)

// ErrorStrategy selects how a node's terminal failure affects the run.
type ErrorStrategy string

const (
	// StrategyStop fails the whole execution on the first terminal node failure
	StrategyStop ErrorStrategy = "stop"
	// StrategyContinue isolates the failed branch and keeps scheduling others
	StrategyContinue ErrorStrategy = "continue"
)

// Duration wraps time.Duration with flexible serialization: strings use
// time.ParseDuration syntax ("30s", "1h"), bare numbers are milliseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String returns the time.Duration string form.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	return d.parse(strings.Trim(string(data), `"`))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Bare numbers are read as
// milliseconds, matching the JSON form.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
		return nil
	case int:
		*d = Duration(time.Duration(v) * time.Millisecond)
		return nil
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
}

func (d *Duration) parse(raw string) error {
	if raw == "" || raw == "null" {
		*d = 0
		return nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// NodePort declares one input or output of a node. Ports are a contract,
// not a channel: runtime data flows through the execution context keyed
// by node id, never by wiring individual ports.
type NodePort struct {
	// ID is the unique port identifier within the node
	ID string `json:"id" yaml:"id"`
	// Name is the port name ("main", "true", "false", ...)
	Name string `json:"name" yaml:"name"`
	// Type declares the value type carried by the port
	Type ValueType `json:"type" yaml:"type"`
	// Required marks an input port that must be fed (inputs only)
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
	// Description is a human-readable note
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// RuleType identifies a validation rule check.
type RuleType string

const (
	// RuleRequired fails when the field is absent
	RuleRequired RuleType = "required"
	// RuleNonEmpty fails when the field is absent, nil or empty
	RuleNonEmpty RuleType = "non_empty"
	// RuleEquals fails when the field does not equal the rule value
	RuleEquals RuleType = "equals"
	// RuleMinCount fails when a collection field has fewer elements than the rule value
	RuleMinCount RuleType = "min_count"
)

// ValidationRule is a field-presence constraint evaluated before a node
// executes and by the validation executor against its input data.
type ValidationRule struct {
	// Field is the dotted path of the checked field
	Field string `json:"field" yaml:"field"`
	// Type selects the check to apply
	Type RuleType `json:"type" yaml:"type"`
	// Value parameterizes equals and min_count checks
	Value any `json:"value,omitempty" yaml:"value,omitempty"`
	// Message overrides the generated violation message
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// WorkflowNode is one operation instance in the graph.
type WorkflowNode struct {
	// ID is the unique node identifier within a definition
	ID string `json:"id" yaml:"id"`
	// Kind tags the operation the node performs
	Kind NodeKind `json:"kind" yaml:"kind"`
	// Label is the human-readable node name
	Label string `json:"label" yaml:"label"`
	// Config is the kind-specific configuration payload
	Config NodeConfig `json:"config" yaml:"config"`
	// Inputs declares the node's input ports
	Inputs []NodePort `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// Outputs declares the node's output ports
	Outputs []NodePort `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Rules are optional field-presence constraints checked before execution
	Rules []ValidationRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// WorkflowEdge is a directed, optionally guarded transition between nodes.
type WorkflowEdge struct {
	// ID is the unique edge identifier within a definition
	ID string `json:"id" yaml:"id"`
	// Source is the id of the node the edge leaves
	Source string `json:"source" yaml:"source"`
	// Target is the id of the node the edge enters
	Target string `json:"target" yaml:"target"`
	// Guard is a boolean expression over context variables; empty means
	// always traverse
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`
}

// WorkflowVariable is a definition-wide declared variable.
type WorkflowVariable struct {
	// ID is the unique variable identifier
	ID string `json:"id" yaml:"id"`
	// Name is the variable name used in expressions
	Name string `json:"name" yaml:"name"`
	// Type declares the variable's value type
	Type ValueType `json:"type" yaml:"type"`
	// Default is the value the variable starts each execution with
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// RetryPolicy controls per-node retry behavior.
type RetryPolicy struct {
	// MaxAttempts is the total number of invocations (1 = no retry)
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// Backoff selects fixed or exponential pause growth
	Backoff BackoffType `json:"backoff" yaml:"backoff"`
	// InitialDelay is the pause before the first retry
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
}

// ErrorHandling controls how terminal node failures affect the run.
type ErrorHandling struct {
	// Strategy is stop or continue
	Strategy ErrorStrategy `json:"strategy" yaml:"strategy"`
	// AlertOnError requests an operator alert on terminal node failure
	AlertOnError bool `json:"alert_on_error,omitempty" yaml:"alert_on_error,omitempty"`
}

// WorkflowSettings hold the execution-wide policies of a definition.
type WorkflowSettings struct {
	// Timeout is the absolute wall-clock budget for one execution (0 = none)
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retry is applied to every node invocation
	Retry RetryPolicy `json:"retry" yaml:"retry"`
	// ErrorHandling selects the stop or continue strategy
	ErrorHandling ErrorHandling `json:"error_handling" yaml:"error_handling"`
}

// WorkflowDefinition is the immutable product of the Builder. Once built
// it is read-only: the engine never mutates a definition in place, and a
// structural edit produces a new definition with a bumped Version.
type WorkflowDefinition struct {
	// ID is the definition identity
	ID string `json:"id" yaml:"id"`
	// Name is the workflow name
	Name string `json:"name" yaml:"name"`
	// Version increases monotonically on structural edits
	Version int `json:"version" yaml:"version"`
	// Nodes lists every node in insertion order
	Nodes []WorkflowNode `json:"nodes" yaml:"nodes"`
	// Edges lists every directed transition
	Edges []WorkflowEdge `json:"edges,omitempty" yaml:"edges,omitempty"`
	// Variables lists the declared definition-wide variables
	Variables []WorkflowVariable `json:"variables,omitempty" yaml:"variables,omitempty"`
	// Settings holds timeout, retry and error-handling policy
	Settings WorkflowSettings `json:"settings" yaml:"settings"`
}

// Node returns the node with the given id.
func (d *WorkflowDefinition) Node(id string) (*WorkflowNode, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// TriggerNodes returns every node tagged with the trigger kind.
func (d *WorkflowDefinition) TriggerNodes() []WorkflowNode {
	var triggers []WorkflowNode
	for _, n := range d.Nodes {
		if n.Kind == KindTrigger {
			triggers = append(triggers, n)
		}
	}
	return triggers
}

// OutgoingEdges returns the edges leaving the given node.
func (d *WorkflowDefinition) OutgoingEdges(nodeID string) []WorkflowEdge {
	var out []WorkflowEdge
	for _, e := range d.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns the edges entering the given node.
func (d *WorkflowDefinition) IncomingEdges(nodeID string) []WorkflowEdge {
	var in []WorkflowEdge
	for _, e := range d.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

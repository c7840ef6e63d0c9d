package workflow

import (
	"strings"

	"github.com/google/uuid"
)

// Canonical port names. The scheduler relies on these being stamped by
// the node constructors and performs no further port-shape validation.
const (
	// PortMain is the default pass-through port
	PortMain = "main"
	// PortTrue is the condition output taken when the expression holds
	PortTrue = "true"
	// PortFalse is the condition output taken when it does not
	PortFalse = "false"
)

// NewNodeID generates a node identifier that is also a legal expression
// identifier, so guards can reference node outputs by id.
func NewNodeID() string {
	return "n" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func newPort(name string, t ValueType, required bool, desc string) NodePort {
	return NodePort{
		ID:          uuid.New().String(),
		Name:        name,
		Type:        t,
		Required:    required,
		Description: desc,
	}
}

func newNode(kind NodeKind, label string, cfg NodeConfig, inputs, outputs []NodePort) WorkflowNode {
	return WorkflowNode{
		ID:      NewNodeID(),
		Kind:    kind,
		Label:   label,
		Config:  cfg,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

// NewTriggerNode builds a trigger node. Triggers have no inputs and
// produce the initial context payload on their main output.
func NewTriggerNode(label string, cfg TriggerConfig) WorkflowNode {
	return newNode(KindTrigger, label, &cfg,
		nil,
		[]NodePort{newPort(PortMain, ValueObject, false, "initial context payload")},
	)
}

// NewTaskNode builds a task node producing {count, ids}.
func NewTaskNode(label string, cfg TaskConfig) WorkflowNode {
	return newNode(KindTask, label, &cfg,
		[]NodePort{newPort(PortMain, ValueObject, false, "items to create work for")},
		[]NodePort{newPort(PortMain, ValueObject, false, "created count and identifiers")},
	)
}

// NewValidationNode builds a validation node producing
// {valid, data, violations}.
func NewValidationNode(label string, cfg ValidationConfig) WorkflowNode {
	return newNode(KindValidation, label, &cfg,
		[]NodePort{newPort(PortMain, ValueAny, true, "data to validate")},
		[]NodePort{newPort(PortMain, ValueObject, false, "pass flag, data and violations")},
	)
}

// NewIntegrationNode builds an integration node producing
// {status, headers, body}.
func NewIntegrationNode(label string, cfg IntegrationConfig) WorkflowNode {
	return newNode(KindIntegration, label, &cfg,
		[]NodePort{newPort(PortMain, ValueObject, false, "call input")},
		[]NodePort{newPort(PortMain, ValueObject, false, "provider response")},
	)
}

// NewAINode builds an AI operation node producing {completion, tokens}.
func NewAINode(label string, cfg AIConfig) WorkflowNode {
	return newNode(KindAI, label, &cfg,
		[]NodePort{newPort(PortMain, ValueObject, false, "prompt context")},
		[]NodePort{newPort(PortMain, ValueObject, false, "model completion")},
	)
}

// NewConditionNode builds a condition node. Conditions always expose
// exactly the outputs "true" and "false".
func NewConditionNode(label string, cfg ConditionConfig) WorkflowNode {
	return newNode(KindCondition, label, &cfg,
		[]NodePort{newPort(PortMain, ValueAny, true, "value the expression reads")},
		[]NodePort{
			newPort(PortTrue, ValueAny, false, "taken when the expression holds"),
			newPort(PortFalse, ValueAny, false, "taken otherwise"),
		},
	)
}

// NewDelayNode builds a delay node with one pass-through input and
// one pass-through output.
func NewDelayNode(label string, cfg DelayConfig) WorkflowNode {
	return newNode(KindDelay, label, &cfg,
		[]NodePort{newPort(PortMain, ValueAny, false, "passed through unchanged")},
		[]NodePort{newPort(PortMain, ValueAny, false, "passed through unchanged")},
	)
}

// NewHTTPRequestNode builds an http_request node producing
// {status, headers, body}.
func NewHTTPRequestNode(label string, cfg HTTPRequestConfig) WorkflowNode {
	return newNode(KindHTTPRequest, label, &cfg,
		[]NodePort{newPort(PortMain, ValueObject, false, "request input")},
		[]NodePort{newPort(PortMain, ValueObject, false, "response status, headers and body")},
	)
}

// NewEmailNode builds an email node producing {delivered, recipients}.
func NewEmailNode(label string, cfg EmailConfig) WorkflowNode {
	return newNode(KindEmail, label, &cfg,
		[]NodePort{newPort(PortMain, ValueObject, false, "template variables")},
		[]NodePort{newPort(PortMain, ValueObject, false, "delivery outcome")},
	)
}

// NewDatabaseNode builds a database node producing {rows, affected}.
func NewDatabaseNode(label string, cfg DatabaseConfig) WorkflowNode {
	return newNode(KindDatabase, label, &cfg,
		[]NodePort{newPort(PortMain, ValueObject, false, "query input")},
		[]NodePort{newPort(PortMain, ValueObject, false, "rows or affected count")},
	)
}

// NewLoopNode builds a loop node producing {items, iterations}.
func NewLoopNode(label string, cfg LoopConfig) WorkflowNode {
	return newNode(KindLoop, label, &cfg,
		[]NodePort{newPort(PortMain, ValueArray, true, "iterable to walk")},
		[]NodePort{newPort(PortMain, ValueObject, false, "processed items and iteration count")},
	)
}

// NewTransformNode builds a data transform node.
func NewTransformNode(label string, cfg TransformConfig) WorkflowNode {
	return newNode(KindTransform, label, &cfg,
		[]NodePort{newPort(PortMain, ValueAny, true, "data to transform")},
		[]NodePort{newPort(PortMain, ValueAny, false, "transformed data")},
	)
}

package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// newConfig returns a zero config value for the given kind, used to
// decode the opaque payload of a serialized node.
func newConfig(kind NodeKind) (NodeConfig, error) {
	switch kind {
	case KindTrigger:
		return &TriggerConfig{}, nil
	case KindTask:
		return &TaskConfig{}, nil
	case KindValidation:
		return &ValidationConfig{}, nil
	case KindIntegration:
		return &IntegrationConfig{}, nil
	case KindAI:
		return &AIConfig{}, nil
	case KindCondition:
		return &ConditionConfig{}, nil
	case KindDelay:
		return &DelayConfig{}, nil
	case KindHTTPRequest:
		return &HTTPRequestConfig{}, nil
	case KindEmail:
		return &EmailConfig{}, nil
	case KindDatabase:
		return &DatabaseConfig{}, nil
	case KindLoop:
		return &LoopConfig{}, nil
	case KindTransform:
		return &TransformConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}

// UnmarshalJSON decodes a node, selecting the config type by kind.
func (n *WorkflowNode) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string           `json:"id"`
		Kind    NodeKind         `json:"kind"`
		Label   string           `json:"label"`
		Config  json.RawMessage  `json:"config"`
		Inputs  []NodePort       `json:"inputs"`
		Outputs []NodePort       `json:"outputs"`
		Rules   []ValidationRule `json:"rules"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal node: %w", err)
	}

	n.ID = raw.ID
	n.Kind = raw.Kind
	n.Label = raw.Label
	n.Inputs = raw.Inputs
	n.Outputs = raw.Outputs
	n.Rules = raw.Rules

	if len(raw.Config) == 0 || string(raw.Config) == "null" {
		return nil
	}
	cfg, err := newConfig(raw.Kind)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	if err := json.Unmarshal(raw.Config, cfg); err != nil {
		return fmt.Errorf("node %s config: %w", raw.ID, err)
	}
	n.Config = cfg
	return nil
}

// UnmarshalYAML decodes a node, selecting the config type by kind.
func (n *WorkflowNode) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID      string           `yaml:"id"`
		Kind    NodeKind         `yaml:"kind"`
		Label   string           `yaml:"label"`
		Config  yaml.Node        `yaml:"config"`
		Inputs  []NodePort       `yaml:"inputs"`
		Outputs []NodePort       `yaml:"outputs"`
		Rules   []ValidationRule `yaml:"rules"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("unmarshal node: %w", err)
	}

	n.ID = raw.ID
	n.Kind = raw.Kind
	n.Label = raw.Label
	n.Inputs = raw.Inputs
	n.Outputs = raw.Outputs
	n.Rules = raw.Rules

	if raw.Config.Kind == 0 || raw.Config.Tag == "!!null" {
		return nil
	}
	cfg, err := newConfig(raw.Kind)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}
	if err := raw.Config.Decode(cfg); err != nil {
		return fmt.Errorf("node %s config: %w", raw.ID, err)
	}
	n.Config = cfg
	return nil
}

// ToJSON converts a definition to an indented JSON string.
func (d *WorkflowDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal definition to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a definition to a YAML string.
func (d *WorkflowDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal definition to YAML: %w", err)
	}
	return string(data), nil
}

// FromJSON parses and validates a definition from a JSON string.
func FromJSON(jsonStr string) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition from JSON: %w", err)
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// FromYAML parses and validates a definition from a YAML string.
func FromYAML(yamlStr string) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal([]byte(yamlStr), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition from YAML: %w", err)
	}
	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFromFile loads a definition, selecting the format by extension
// (.json, .yaml, .yml).
func LoadFromFile(filename string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FromJSON(string(data))
	case ".yaml", ".yml":
		return FromYAML(string(data))
	default:
		return nil, fmt.Errorf("unsupported definition format %q", filepath.Ext(filename))
	}
}

// SaveToFile writes a definition, selecting the format by extension.
func (d *WorkflowDefinition) SaveToFile(filename string) error {
	var (
		out string
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		out, err = d.ToJSON()
	case ".yaml", ".yml":
		out, err = d.ToYAML()
	default:
		return fmt.Errorf("unsupported definition format %q", filepath.Ext(filename))
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write definition file: %w", err)
	}
	return nil
}

package workflow

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func buildRoundTripDefinition(t *testing.T) *WorkflowDefinition {
	t.Helper()

	b := NewBuilder("serialization sample").
		WithLogger(zap.NewNop()).
		WithTimeout(90*time.Second).
		WithRetry(RetryPolicy{
			MaxAttempts:  3,
			Backoff:      BackoffExponential,
			InitialDelay: Duration(250 * time.Millisecond),
		})
	b.DeclareVariable("project_id", ValueString, "proj-7")

	triggerID := b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	taskID := b.AddTask("create tasks", TaskConfig{
		Type:      TaskLabeling,
		ProjectID: "proj-7",
	}, triggerID)
	condID := b.AddCondition("batch ready", ConditionConfig{
		Expression: taskID + ".count >= 2",
	}, taskID)
	httpID := b.AddHTTPRequest("report", HTTPRequestConfig{
		URL:     "https://hooks.labelmint.dev/report",
		Method:  "POST",
		Headers: map[string]string{"X-Source": "mintflow"},
		Timeout: Duration(5 * time.Second),
	})
	delayID := b.AddDelay("back off", DelayConfig{Mode: DelayFixed, Duration: 30, Unit: "s"})
	b.AddConditionBranches(condID, httpID, delayID)

	def, err := b.Build()
	require.NoError(t, err)
	return def
}

func assertDefinitionsEqual(t *testing.T, want, got *WorkflowDefinition) {
	t.Helper()

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.Settings, got.Settings)
	assert.Equal(t, want.Variables, got.Variables)
	assert.Equal(t, want.Edges, got.Edges)

	require.Len(t, got.Nodes, len(want.Nodes))
	for i, wn := range want.Nodes {
		gn := got.Nodes[i]
		assert.Equal(t, wn.ID, gn.ID)
		assert.Equal(t, wn.Kind, gn.Kind)
		assert.Equal(t, wn.Label, gn.Label)
		assert.Equal(t, wn.Config, gn.Config)
	}
}

func TestSerialization_JSONRoundTrip(t *testing.T) {
	def := buildRoundTripDefinition(t)

	out, err := def.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(out)
	require.NoError(t, err)
	assertDefinitionsEqual(t, def, decoded)

	// Configs come back as the kind-specific type, not a generic map.
	node, ok := decoded.Node(decoded.TriggerNodes()[0].ID)
	require.True(t, ok)
	_, isTrigger := node.Config.(*TriggerConfig)
	assert.True(t, isTrigger)
}

func TestSerialization_YAMLRoundTrip(t *testing.T) {
	def := buildRoundTripDefinition(t)

	out, err := def.ToYAML()
	require.NoError(t, err)

	decoded, err := FromYAML(out)
	require.NoError(t, err)
	assertDefinitionsEqual(t, def, decoded)
}

func TestSerialization_DecodedConfigTypes(t *testing.T) {
	def := buildRoundTripDefinition(t)
	out, err := def.ToJSON()
	require.NoError(t, err)
	decoded, err := FromJSON(out)
	require.NoError(t, err)

	for _, n := range decoded.Nodes {
		require.NotNil(t, n.Config, "node %s", n.ID)
		assert.Equal(t, n.Kind, n.Config.Kind(), "node %s", n.ID)
	}
}

func TestFromJSON_RejectsInvalidDefinition(t *testing.T) {
	// Structurally valid JSON, structurally invalid graph: no trigger.
	_, err := FromJSON(`{
		"id": "def-1",
		"name": "no trigger",
		"version": 1,
		"nodes": [
			{"id": "d1", "kind": "delay", "label": "hold",
			 "config": {"mode": "fixed", "duration": 1, "unit": "s"}}
		]
	}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one trigger")
}

func TestFromJSON_RejectsUnknownKind(t *testing.T) {
	_, err := FromJSON(`{
		"id": "def-1",
		"name": "bad kind",
		"version": 1,
		"nodes": [
			{"id": "n1", "kind": "teleport", "label": "zap", "config": {}}
		]
	}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node kind")
}

func TestFromYAML_HandWrittenDefinition(t *testing.T) {
	def, err := FromYAML(`
id: def-yaml
name: yaml pipeline
version: 1
nodes:
  - id: start
    kind: trigger
    label: start
    config:
      type: manual
  - id: create
    kind: task
    label: create tasks
    config:
      type: labeling
      project_id: proj-9
  - id: verify
    kind: validation
    label: consensus
    config:
      rule: consensus
      min_consensus: 2
edges:
  - id: e1
    source: start
    target: create
  - id: e2
    source: create
    target: verify
settings:
  timeout: 30s
  retry:
    max_attempts: 2
    backoff: fixed
    initial_delay: 100ms
  error_handling:
    strategy: continue
`)
	require.NoError(t, err)

	assert.Equal(t, "def-yaml", def.ID)
	assert.Equal(t, Duration(30*time.Second), def.Settings.Timeout)
	assert.Equal(t, Duration(100*time.Millisecond), def.Settings.Retry.InitialDelay)
	assert.Equal(t, StrategyContinue, def.Settings.ErrorHandling.Strategy)

	task, ok := def.Node("create")
	require.True(t, ok)
	cfg, isTask := task.Config.(*TaskConfig)
	require.True(t, isTask)
	assert.Equal(t, "proj-9", cfg.ProjectID)
}

func TestSaveAndLoadFile(t *testing.T) {
	def := buildRoundTripDefinition(t)
	dir := t.TempDir()

	for _, name := range []string{"def.json", "def.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, def.SaveToFile(path))

		loaded, err := LoadFromFile(path)
		require.NoError(t, err)
		assertDefinitionsEqual(t, def, loaded)
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "def.toml"))
	require.Error(t, err)
}

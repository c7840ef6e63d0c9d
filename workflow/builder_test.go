package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labelmint/mintflow/types"
)

func TestBuilder_LinearPipeline(t *testing.T) {
	b := NewBuilder("labeling pipeline").WithLogger(zap.NewNop())

	triggerID := b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	taskID := b.AddTask("create tasks", TaskConfig{
		Type:      TaskLabeling,
		ProjectID: "proj-1",
	}, triggerID)
	validationID := b.AddValidation("consensus", ValidationConfig{
		Rule:         "consensus",
		MinConsensus: 2,
	}, taskID)

	def, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "labeling pipeline", def.Name)
	assert.Equal(t, 1, def.Version)
	assert.Len(t, def.Nodes, 3)
	assert.Len(t, def.Edges, 2)

	node, ok := def.Node(taskID)
	require.True(t, ok)
	assert.Equal(t, KindTask, node.Kind)

	triggers := def.TriggerNodes()
	require.Len(t, triggers, 1)
	assert.Equal(t, triggerID, triggers[0].ID)

	out := def.OutgoingEdges(taskID)
	require.Len(t, out, 1)
	assert.Equal(t, validationID, out[0].Target)

	in := def.IncomingEdges(validationID)
	require.Len(t, in, 1)
	assert.Equal(t, taskID, in[0].Source)
}

func TestBuilder_DefaultSettings(t *testing.T) {
	b := NewBuilder("defaults").WithLogger(zap.NewNop())
	b.AddTrigger("start", TriggerConfig{Type: TriggerManual})

	def, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, 1, def.Settings.Retry.MaxAttempts)
	assert.Equal(t, BackoffFixed, def.Settings.Retry.Backoff)
	assert.Equal(t, StrategyStop, def.Settings.ErrorHandling.Strategy)
	assert.Equal(t, Duration(0), def.Settings.Timeout)
}

func TestBuilder_ExplicitSettings(t *testing.T) {
	b := NewBuilder("configured").
		WithLogger(zap.NewNop()).
		WithTimeout(2 * time.Minute).
		WithRetry(RetryPolicy{
			MaxAttempts:  3,
			Backoff:      BackoffExponential,
			InitialDelay: Duration(50 * time.Millisecond),
		}).
		WithErrorHandling(ErrorHandling{Strategy: StrategyContinue, AlertOnError: true})
	b.AddTrigger("start", TriggerConfig{Type: TriggerManual})

	def, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, Duration(2*time.Minute), def.Settings.Timeout)
	assert.Equal(t, 3, def.Settings.Retry.MaxAttempts)
	assert.Equal(t, BackoffExponential, def.Settings.Retry.Backoff)
	assert.Equal(t, StrategyContinue, def.Settings.ErrorHandling.Strategy)
	assert.True(t, def.Settings.ErrorHandling.AlertOnError)
}

func TestBuilder_ConditionBranches(t *testing.T) {
	b := NewBuilder("branching").WithLogger(zap.NewNop())

	triggerID := b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	condID := b.AddCondition("enough tasks", ConditionConfig{
		Expression: "batch.count >= 3",
	}, triggerID)
	trueID := b.AddEmail("notify", EmailConfig{
		Recipients: []string{"ops@labelmint.dev"},
		Body:       "batch ready",
	})
	falseID := b.AddDelay("wait", DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "s"})
	b.AddConditionBranches(condID, trueID, falseID)

	def, err := b.Build()
	require.NoError(t, err)

	out := def.OutgoingEdges(condID)
	require.Len(t, out, 2)
	guards := map[string]string{out[0].Target: out[0].Guard, out[1].Target: out[1].Guard}
	assert.Equal(t, condID+".result == true", guards[trueID])
	assert.Equal(t, condID+".result == false", guards[falseID])
}

func TestBuilder_ConditionBranchesPartial(t *testing.T) {
	b := NewBuilder("one-armed").WithLogger(zap.NewNop())

	triggerID := b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	condID := b.AddCondition("check", ConditionConfig{Expression: "x > 0"}, triggerID)
	trueID := b.AddDelay("hold", DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "ms"})
	b.AddConditionBranches(condID, trueID, "")

	def, err := b.Build()
	require.NoError(t, err)
	assert.Len(t, def.OutgoingEdges(condID), 1)
}

func TestBuilder_CollectsAllViolations(t *testing.T) {
	b := NewBuilder("broken").WithLogger(zap.NewNop())

	// No trigger, a task with an invalid config, and a dangling edge.
	taskID := b.AddTask("bad task", TaskConfig{Type: TaskLabeling})
	b.AddEdge(taskID, "no-such-node")

	_, err := b.Build()
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStructural))

	msg := err.Error()
	assert.Contains(t, msg, "at least one trigger")
	assert.Contains(t, msg, "project")
	assert.Contains(t, msg, "no-such-node")
}

func TestBuilder_RejectsCycle(t *testing.T) {
	b := NewBuilder("cyclic").WithLogger(zap.NewNop())

	triggerID := b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	aID := b.AddDelay("a", DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "ms"}, triggerID)
	bID := b.AddDelay("b", DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "ms"}, aID)
	b.AddEdge(bID, aID)

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuilder_RejectsUnreachableNode(t *testing.T) {
	b := NewBuilder("orphaned").WithLogger(zap.NewNop())

	b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	b.AddDelay("island", DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "ms"})

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestBuilder_RejectsInvalidGuard(t *testing.T) {
	b := NewBuilder("bad guard").WithLogger(zap.NewNop())

	triggerID := b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	delayID := b.AddDelay("hold", DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "ms"})
	b.AddGuardedEdge(triggerID, delayID, "x >===< y")

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid guard")
}

func TestBuilder_RejectsEmptyDefinition(t *testing.T) {
	_, err := NewBuilder("empty").WithLogger(zap.NewNop()).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}

func TestEdit_BumpsVersionAndKeepsOriginal(t *testing.T) {
	b := NewBuilder("v1").WithLogger(zap.NewNop())
	triggerID := b.AddTrigger("start", TriggerConfig{Type: TriggerManual})
	v1, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)

	edit := Edit(v1).WithLogger(zap.NewNop())
	edit.AddDelay("hold", DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "s"}, triggerID)
	v2, err := edit.Build()
	require.NoError(t, err)

	assert.Equal(t, v1.ID, v2.ID)
	assert.Equal(t, 2, v2.Version)
	assert.Len(t, v2.Nodes, 2)

	// The original definition is untouched.
	assert.Equal(t, 1, v1.Version)
	assert.Len(t, v1.Nodes, 1)
}

func TestBuilder_DeclareVariable(t *testing.T) {
	b := NewBuilder("with vars").WithLogger(zap.NewNop())
	b.DeclareVariable("project_id", ValueString, "proj-1")
	b.AddTrigger("start", TriggerConfig{Type: TriggerManual})

	def, err := b.Build()
	require.NoError(t, err)
	require.Len(t, def.Variables, 1)
	assert.Equal(t, "project_id", def.Variables[0].Name)
	assert.Equal(t, ValueString, def.Variables[0].Type)
	assert.Equal(t, "proj-1", def.Variables[0].Default)
}

func TestValidateDefinition_ConfigKindMismatch(t *testing.T) {
	def := &WorkflowDefinition{
		ID:      "def-1",
		Name:    "mismatch",
		Version: 1,
		Nodes: []WorkflowNode{
			{ID: "t", Kind: KindTrigger, Label: "start", Config: &TriggerConfig{Type: TriggerManual}},
			{ID: "n", Kind: KindTask, Label: "oops", Config: &DelayConfig{Mode: DelayFixed, Duration: 1, Unit: "s"}},
		},
		Edges: []WorkflowEdge{{ID: "e1", Source: "t", Target: "n"}},
	}

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carries a delay config for kind task")
}

func TestValidateDefinition_DuplicateIDs(t *testing.T) {
	def := &WorkflowDefinition{
		ID:      "def-1",
		Name:    "dupes",
		Version: 1,
		Nodes: []WorkflowNode{
			{ID: "t", Kind: KindTrigger, Label: "a", Config: &TriggerConfig{Type: TriggerManual}},
			{ID: "t", Kind: KindTrigger, Label: "b", Config: &TriggerConfig{Type: TriggerManual}},
		},
		Edges: []WorkflowEdge{
			{ID: "e", Source: "t", Target: "t"},
		},
	}

	err := ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id t")
}

package integrations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/testutil/mocks"
)

func failedExecution() *engine.Execution {
	return &engine.Execution{
		ID:             "exec-9",
		DefinitionID:   "def-1",
		DefinitionName: "labeling pipeline",
		State:          engine.StateFailed,
		NodeRuns: map[string]*engine.NodeRun{
			"start":  {NodeID: "start", State: engine.NodeCompleted},
			"upload": {NodeID: "upload", State: engine.NodeFailed, Error: "boom"},
		},
		Errors: []string{"[EXECUTION] node upload: boom"},
	}
}

func TestFailureAlerter_NamesFailedNodes(t *testing.T) {
	t.Parallel()
	notifier := mocks.NewMockNotifier()
	alerter := NewFailureAlerter(notifier, "ops")

	require.NoError(t, alerter.Alert(context.Background(), failedExecution()))

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ops", sent[0].Channel)
	assert.Contains(t, sent[0].Body, "labeling pipeline")
	assert.Contains(t, sent[0].Body, "upload")
	assert.NotContains(t, sent[0].Body, "start,")
	assert.Equal(t, "failed", sent[0].Vars["state"])
}

func TestFailureAlerter_PropagatesSendError(t *testing.T) {
	t.Parallel()
	notifier := mocks.NewMockNotifier().WithError(errors.New("channel gone"))
	alerter := NewFailureAlerter(notifier, "ops")
	assert.Error(t, alerter.Alert(context.Background(), failedExecution()))
}

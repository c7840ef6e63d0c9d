package integrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/executors"
)

// FailureAlerter reports failed executions through the notification
// collaborator. It implements engine.Alerter.
type FailureAlerter struct {
	notifier executors.Notifier
	channel  string
}

var _ engine.Alerter = (*FailureAlerter)(nil)

// NewFailureAlerter routes execution failure alerts to one channel.
func NewFailureAlerter(notifier executors.Notifier, channel string) *FailureAlerter {
	return &FailureAlerter{notifier: notifier, channel: channel}
}

// Alert sends a failure summary naming every failed node, not just the
// one that stopped the run.
func (a *FailureAlerter) Alert(ctx context.Context, exec *engine.Execution) error {
	var failed []string
	for id, run := range exec.NodeRuns {
		if run.State == engine.NodeFailed {
			failed = append(failed, id)
		}
	}

	body := fmt.Sprintf("workflow %q execution %s ended %s",
		exec.DefinitionName, exec.ID, exec.State)
	if len(failed) > 0 {
		body += "; failed nodes: " + strings.Join(failed, ", ")
	}

	return a.notifier.Send(ctx, executors.Notification{
		Channel: a.channel,
		Subject: "workflow execution failed",
		Body:    body,
		Vars: map[string]any{
			"execution_id":  exec.ID,
			"definition_id": exec.DefinitionID,
			"state":         string(exec.State),
			"errors":        exec.Errors,
		},
	})
}

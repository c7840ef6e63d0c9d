// Package fixtures provides workflow definitions shared by tests.
package fixtures

import (
	"time"

	"github.com/labelmint/mintflow/workflow"
)

// LabelingPipeline is the canonical three-step pipeline: a manual
// trigger creates labeling tasks against a project, then consensus
// validation checks the created batch. Node ids come back alongside the
// definition so tests can inspect per-node runs.
type LabelingPipeline struct {
	Def          *workflow.WorkflowDefinition
	TriggerID    string
	TaskID       string
	ValidationID string
}

// NewLabelingPipeline builds the pipeline with the stop strategy and
// the given project id.
func NewLabelingPipeline(projectID string) (*LabelingPipeline, error) {
	b := workflow.NewBuilder("labeling pipeline").WithErrorHandling(workflow.ErrorHandling{
		Strategy: workflow.StrategyStop,
	})

	triggerID := b.AddTrigger("start", workflow.TriggerConfig{Type: workflow.TriggerManual})
	taskID := b.AddTask("create labeling tasks", workflow.TaskConfig{
		Type:      workflow.TaskLabeling,
		ProjectID: projectID,
	}, triggerID)
	validationID := b.AddValidation("consensus check", workflow.ValidationConfig{
		Rule:         "consensus",
		MinConsensus: 2,
		InputFrom:    taskID,
	}, taskID)

	def, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &LabelingPipeline{
		Def:          def,
		TriggerID:    triggerID,
		TaskID:       taskID,
		ValidationID: validationID,
	}, nil
}

// ReviewEscalation is a branching pipeline: after review assignments
// are created, a condition routes to either an approval email or an
// escalation delay followed by a second review pass.
type ReviewEscalation struct {
	Def         *workflow.WorkflowDefinition
	TriggerID   string
	ReviewID    string
	ConditionID string
	ApproveID   string
	EscalateID  string
}

// NewReviewEscalation builds the branching pipeline.
func NewReviewEscalation() (*ReviewEscalation, error) {
	b := workflow.NewBuilder("review escalation").
		WithTimeout(5 * time.Minute).
		WithRetry(workflow.RetryPolicy{
			MaxAttempts:  2,
			Backoff:      workflow.BackoffFixed,
			InitialDelay: workflow.Duration(10 * time.Millisecond),
		})

	triggerID := b.AddTrigger("start", workflow.TriggerConfig{Type: workflow.TriggerManual})
	reviewID := b.AddTask("assign reviews", workflow.TaskConfig{
		Type:        workflow.TaskReview,
		TaskIDsFrom: "task_ids",
	}, triggerID)
	conditionID := b.AddCondition("all assigned", workflow.ConditionConfig{
		Expression: reviewID + ".count >= 2",
	}, reviewID)
	approveID := b.AddEmail("notify approvers", workflow.EmailConfig{
		Recipients: []string{"qa@labelmint.dev"},
		Subject:    "reviews assigned",
		Body:       "all review assignments created",
	})
	escalateID := b.AddDelay("escalation hold", workflow.DelayConfig{
		Mode:     workflow.DelayFixed,
		Duration: 5,
		Unit:     "ms",
	})
	b.AddConditionBranches(conditionID, approveID, escalateID)

	def, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &ReviewEscalation{
		Def:         def,
		TriggerID:   triggerID,
		ReviewID:    reviewID,
		ConditionID: conditionID,
		ApproveID:   approveID,
		EscalateID:  escalateID,
	}, nil
}

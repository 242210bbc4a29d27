// Package workflows contains the Temporal workflow that keeps the streaming
// labeling job alive.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/temporal/activities"
)

// Activity timeouts.
const (
	readActivityTimeout   = 30 * time.Second
	createActivityTimeout = 2 * time.Minute
)

// ReconcileLabelingJobWorkflow observes the streaming job and starts a new one
// when it is not running. Job creation is attempted at most once per run.
func ReconcileLabelingJobWorkflow(ctx workflow.Context) (*domain.ReconcileResult, error) {
	logger := workflow.GetLogger(ctx)

	var labelingAct *activities.LabelingActivities

	readCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: readActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})

	createCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: createActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        1,
			NonRetryableErrorTypes: []string{activities.ErrTypeCreateJob},
		},
	})

	var state domain.LabelingJobState
	if err := workflow.ExecuteActivity(readCtx, labelingAct.GetLabelingJobState).Get(ctx, &state); err != nil {
		logger.Error("failed to read labeling job state", "error", err)
		return nil, err
	}

	if !state.Status.NeedsCreate() {
		logger.Info("labeling job running", "jobName", state.JobName)
		return &domain.ReconcileResult{
			Action:         domain.ReconcileNoop,
			ObservedJob:    state.JobName,
			ObservedStatus: state.Status,
		}, nil
	}

	var result domain.ReconcileResult
	err := workflow.ExecuteActivity(createCtx, labelingAct.CreateLabelingJob, activities.CreateLabelingJobInput{
		Observed: state,
	}).Get(ctx, &result)
	if err != nil {
		logger.Error("failed to create labeling job", "status", string(state.Status), "error", err)
		return nil, err
	}

	logger.Info("reconcile complete", "action", string(result.Action), "createdJob", result.CreatedJob)
	return &result, nil
}

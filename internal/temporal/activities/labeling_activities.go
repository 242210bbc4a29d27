// Package activities contains the Temporal activities of the labeling job
// lifecycle monitor.
package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/document-review-service/internal/domain"
)

// Reconciler is the observe/act pair the activities delegate to.
type Reconciler interface {
	Observe(ctx context.Context) (domain.LabelingJobState, error)
	Act(ctx context.Context, state domain.LabelingJobState) (domain.ReconcileResult, error)
}

// LabelingActivities wraps a Reconciler as Temporal activities.
// Methods on this struct are registered as Temporal activities via the worker.
type LabelingActivities struct {
	reconciler Reconciler
}

// NewLabelingActivities creates a new LabelingActivities instance.
func NewLabelingActivities(reconciler Reconciler) *LabelingActivities {
	return &LabelingActivities{reconciler: reconciler}
}

// GetLabelingJobState reads the state of the newest streaming job. Failures
// are returned as retryable errors.
func (a *LabelingActivities) GetLabelingJobState(ctx context.Context) (domain.LabelingJobState, error) {
	logger := activity.GetLogger(ctx)

	state, err := a.reconciler.Observe(ctx)
	if err != nil {
		logger.Warn("failed to read labeling job state", "error", err)
		return domain.LabelingJobState{}, err
	}

	logger.Info("observed labeling job",
		"jobName", state.JobName,
		"status", string(state.Status),
	)
	return state, nil
}

// CreateLabelingJob starts a new job when the observed job is not running.
// A failed create is reported as a non-retryable application error.
func (a *LabelingActivities) CreateLabelingJob(ctx context.Context, input CreateLabelingJobInput) (domain.ReconcileResult, error) {
	logger := activity.GetLogger(ctx)

	result, err := a.reconciler.Act(ctx, input.Observed)
	if err != nil {
		var createErr *domain.CreateJobError
		if errors.As(err, &createErr) {
			logger.Error("labeling job creation failed",
				"jobName", createErr.JobName,
				"statusCode", createErr.StatusCode,
				"error", err,
			)
			return result, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeCreateJob, err, createErr.JobName)
		}
		return result, err
	}

	if result.Action == domain.ReconcileCreated {
		logger.Info("labeling job created", "jobName", result.CreatedJob)
	}
	return result, nil
}

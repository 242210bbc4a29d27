// Package monitor keeps exactly one streaming labeling job alive.
//
// A Reconciler observes the newest job under the configured name prefix and
// starts a replacement whenever that job is not running. It holds no state of
// its own; the labeling control plane is the source of truth.
package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/observability"
)

// LabelingAPI is the subset of the control API the reconciler needs.
type LabelingAPI interface {
	GetStatus(ctx context.Context, namePrefix string) (domain.LabelingJobState, error)
	CreateJob(ctx context.Context, cfg domain.LabelingJobConfig) (string, error)
}

// Reconciler compares observed job state with the desired state.
type Reconciler struct {
	api     LabelingAPI
	jobCfg  domain.LabelingJobConfig
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewReconciler creates a Reconciler for the job described by jobCfg.
func NewReconciler(api LabelingAPI, jobCfg domain.LabelingJobConfig, metrics *observability.Metrics, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		api:     api,
		jobCfg:  jobCfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "monitor").Str("job_prefix", jobCfg.NamePrefix).Logger(),
	}
}

// Reconcile performs one observation and, if needed, one create attempt.
func (r *Reconciler) Reconcile(ctx context.Context) (domain.ReconcileResult, error) {
	state, err := r.Observe(ctx)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	return r.Act(ctx, state)
}

// Observe reads the current job state.
func (r *Reconciler) Observe(ctx context.Context) (domain.LabelingJobState, error) {
	state, err := r.api.GetStatus(ctx, r.jobCfg.NamePrefix)
	if err != nil {
		return domain.LabelingJobState{}, fmt.Errorf("failed to read labeling job status: %w", err)
	}
	return state, nil
}

// Act starts a job when state is not running. A failed create is returned as
// a *domain.CreateJobError and is not retried here.
func (r *Reconciler) Act(ctx context.Context, state domain.LabelingJobState) (domain.ReconcileResult, error) {
	result := domain.ReconcileResult{
		Action:         domain.ReconcileNoop,
		ObservedJob:    state.JobName,
		ObservedStatus: state.Status,
	}

	if !state.Status.NeedsCreate() {
		r.logger.Debug().Str("job_name", state.JobName).Msg("labeling job running")
		r.metrics.RecordReconcile(string(state.Status), string(result.Action))
		return result, nil
	}

	r.logger.Info().
		Str("job_name", state.JobName).
		Str("status", string(state.Status)).
		Str("raw_status", state.RawStatus).
		Msg("labeling job not running, starting a new one")

	name, err := r.api.CreateJob(ctx, r.jobCfg)
	if err != nil {
		r.metrics.RecordJobCreateFailure()
		r.metrics.RecordReconcile(string(state.Status), "create_failed")

		var createErr *domain.CreateJobError
		if !errors.As(err, &createErr) {
			err = domain.NewCreateJobError("", 0, err)
		}
		r.logger.Error().Err(err).Msg("failed to create labeling job")
		return result, err
	}

	result.Action = domain.ReconcileCreated
	result.CreatedJob = name
	r.metrics.RecordReconcile(string(state.Status), string(result.Action))
	r.logger.Info().Str("created_job", name).Msg("labeling job created")
	return result, nil
}

package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/helixir/document-review-service/internal/temporal/workflows"
)

const (
	// DefaultScheduleID identifies the reconcile schedule.
	DefaultScheduleID = "labeling-job-reconcile"

	// DefaultCron runs the reconcile daily at 06:00 UTC.
	DefaultCron = "0 6 * * *"

	// ManualReconcileWorkflowID is the workflow ID used by on-demand runs.
	ManualReconcileWorkflowID = "labeling-job-reconcile-manual"
)

// ScheduleConfig describes the reconcile schedule.
type ScheduleConfig struct {
	ID         string
	Cron       string
	TaskQueue  string
	RunTimeout time.Duration
}

func (c ScheduleConfig) withDefaults() ScheduleConfig {
	if c.ID == "" {
		c.ID = DefaultScheduleID
	}
	if c.Cron == "" {
		c.Cron = DefaultCron
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	return c
}

// scheduleOptions builds the schedule. Overlapping runs are skipped so at most
// one reconcile is in flight.
func scheduleOptions(cfg ScheduleConfig) client.ScheduleOptions {
	return client.ScheduleOptions{
		ID: cfg.ID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cfg.Cron},
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:                 cfg.ID + "-run",
			Workflow:           workflows.ReconcileLabelingJobWorkflow,
			TaskQueue:          cfg.TaskQueue,
			WorkflowRunTimeout: cfg.RunTimeout,
		},
	}
}

// EnsureSchedule creates the reconcile schedule. An existing schedule with
// the same ID is left untouched.
func EnsureSchedule(ctx context.Context, schedules client.ScheduleClient, cfg ScheduleConfig, logger zerolog.Logger) error {
	cfg = cfg.withDefaults()
	if cfg.TaskQueue == "" {
		return fmt.Errorf("task queue is required")
	}

	_, err := schedules.Create(ctx, scheduleOptions(cfg))
	if errors.Is(err, sdktemporal.ErrScheduleAlreadyRunning) {
		logger.Info().Str("schedule_id", cfg.ID).Msg("reconcile schedule already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create schedule %s: %w", cfg.ID, err)
	}

	logger.Info().Str("schedule_id", cfg.ID).Str("cron", cfg.Cron).Msg("reconcile schedule created")
	return nil
}

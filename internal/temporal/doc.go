// Package temporal runs the labeling job lifecycle monitor on Temporal.
//
// The monitor is a single workflow, ReconcileLabelingJobWorkflow, started by
// a Temporal Schedule:
//
//	schedule ID:  labeling-job-reconcile
//	cron:         0 6 * * * (configurable)
//	overlap:      SKIP
//
// The workflow reads the newest streaming job through GetLabelingJobState,
// which is retried, and calls CreateLabelingJob when that job is not running.
// CreateLabelingJob runs at most once; a failure surfaces as a non-retryable
// CreateJobError.
//
// # Worker Setup
//
//	c, err := temporal.NewClient(temporal.ClientConfig{HostPort: "localhost:7233", Namespace: "default"}, logger)
//	acts := activities.NewLabelingActivities(reconciler)
//	wm, err := temporal.NewWorkerManager(c, temporal.WorkerConfig{TaskQueue: "document-review-monitor"}, acts)
//	err = temporal.EnsureSchedule(ctx, c.ScheduleClient(), temporal.ScheduleConfig{TaskQueue: wm.TaskQueue()}, logger)
//	err = wm.Start(ctx)
package temporal

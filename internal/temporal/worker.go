package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/helixir/document-review-service/internal/temporal/activities"
	"github.com/helixir/document-review-service/internal/temporal/workflows"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// TaskQueue is the name of the task queue to poll.
	TaskQueue string

	// MaxConcurrentActivityExecutionSize defaults to 10.
	MaxConcurrentActivityExecutionSize int

	// MaxConcurrentWorkflowTaskExecutionSize defaults to 10.
	MaxConcurrentWorkflowTaskExecutionSize int
}

func workerOptionsFromConfig(config WorkerConfig) worker.Options {
	options := worker.Options{
		MaxConcurrentActivityExecutionSize:     config.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: config.MaxConcurrentWorkflowTaskExecutionSize,
	}
	if options.MaxConcurrentActivityExecutionSize == 0 {
		options.MaxConcurrentActivityExecutionSize = 10
	}
	if options.MaxConcurrentWorkflowTaskExecutionSize == 0 {
		options.MaxConcurrentWorkflowTaskExecutionSize = 10
	}
	return options
}

// WorkerManager manages the lifecycle of the monitor worker.
type WorkerManager struct {
	worker    worker.Worker
	taskQueue string
}

// NewWorkerManager creates a worker with the reconcile workflow and the
// given activities registered.
func NewWorkerManager(c client.Client, config WorkerConfig, acts *activities.LabelingActivities) (*WorkerManager, error) {
	if config.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}
	if acts == nil {
		return nil, fmt.Errorf("labeling activities are required")
	}

	w := worker.New(c, config.TaskQueue, workerOptionsFromConfig(config))
	Register(w, acts)

	return &WorkerManager{worker: w, taskQueue: config.TaskQueue}, nil
}

// Register registers the reconcile workflow and activities on r.
func Register(r worker.Registry, acts *activities.LabelingActivities) {
	r.RegisterWorkflow(workflows.ReconcileLabelingJobWorkflow)
	r.RegisterActivity(acts)
}

// TaskQueue returns the configured task queue name.
func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start runs the worker and blocks until ctx is cancelled or the worker stops.
func (m *WorkerManager) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.worker.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		m.worker.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop stops the worker gracefully.
func (m *WorkerManager) Stop() {
	m.worker.Stop()
}

package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/observability"
	"github.com/helixir/document-review-service/internal/temporal/workflows"
)

const (
	// DefaultHealthCheckTimeout is the timeout for Temporal server health checks.
	DefaultHealthCheckTimeout = 5 * time.Second

	// DefaultRunTimeout bounds one reconcile workflow execution.
	DefaultRunTimeout = 10 * time.Minute
)

var (
	// ErrWorkflowNotFound indicates the workflow execution was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a workflow with the same ID is already running.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrConnectionFailed indicates a connection failure to the Temporal server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNamespaceNotFound indicates the namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDeadlineExceeded indicates the operation deadline was exceeded.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrCanceled indicates the caller canceled the operation.
	ErrCanceled = errors.New("canceled")

	// ErrWorkflowFailed indicates the workflow ran and returned an error.
	ErrWorkflowFailed = errors.New("workflow failed")
)

// TemporalError wraps a Temporal error with the operation and workflow that
// produced it.
type TemporalError struct {
	Op         string
	Kind       error
	WorkflowID string
	Err        error
}

// Error returns the error message.
func (e *TemporalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.WorkflowID != "" {
		msg += fmt.Sprintf(" [workflowID=%s]", e.WorkflowID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TemporalError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error's Kind.
func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func wrapTemporalError(op string, err error, workflowID string) error {
	if err == nil {
		return nil
	}

	te := &TemporalError{Op: op, WorkflowID: workflowID, Err: err}

	var notFoundErr *serviceerror.NotFound
	var alreadyStartedErr *serviceerror.WorkflowExecutionAlreadyStarted
	var namespaceNotFoundErr *serviceerror.NamespaceNotFound
	var invalidArgumentErr *serviceerror.InvalidArgument
	var deadlineExceededErr *serviceerror.DeadlineExceeded
	var unavailableErr *serviceerror.Unavailable

	switch {
	case errors.As(err, &notFoundErr):
		te.Kind = ErrWorkflowNotFound
	case errors.As(err, &alreadyStartedErr):
		te.Kind = ErrWorkflowAlreadyStarted
	case errors.As(err, &namespaceNotFoundErr):
		te.Kind = ErrNamespaceNotFound
	case errors.As(err, &invalidArgumentErr):
		te.Kind = ErrInvalidArgument
	case errors.As(err, &deadlineExceededErr), errors.Is(err, context.DeadlineExceeded):
		te.Kind = ErrDeadlineExceeded
	case errors.Is(err, context.Canceled):
		te.Kind = ErrCanceled
	case errors.As(err, &unavailableErr):
		te.Kind = ErrConnectionFailed
	default:
		te.Kind = ErrConnectionFailed
	}
	return te
}

// IsWorkflowAlreadyStarted checks if the error indicates a workflow already started.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// IsConnectionFailed checks if the error indicates a connection failure.
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	// HostPort is the Temporal server address (e.g., "localhost:7233").
	HostPort string

	// Namespace is the Temporal namespace to use.
	Namespace string

	// TaskQueue is the task queue the monitor worker polls.
	TaskQueue string

	// HealthCheckTimeout defaults to 5 seconds if not set.
	HealthCheckTimeout time.Duration
}

// NewClient dials Temporal. SDK logs are routed through logger.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    observability.NewTemporalLogger(logger.With().Str("component", "temporal").Logger()),
	})
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// ReconcileClient starts reconcile workflows on demand.
type ReconcileClient struct {
	client             client.Client
	taskQueue          string
	healthCheckTimeout time.Duration
	runTimeout         time.Duration
}

// NewReconcileClient creates a ReconcileClient.
func NewReconcileClient(c client.Client, cfg ClientConfig, runTimeout time.Duration) *ReconcileClient {
	healthTimeout := cfg.HealthCheckTimeout
	if healthTimeout == 0 {
		healthTimeout = DefaultHealthCheckTimeout
	}
	if runTimeout == 0 {
		runTimeout = DefaultRunTimeout
	}
	return &ReconcileClient{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		healthCheckTimeout: healthTimeout,
		runTimeout:         runTimeout,
	}
}

// Health checks the connection to the Temporal server.
func (c *ReconcileClient) Health(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "")
	}
	return nil
}

// RunReconcile executes ReconcileLabelingJobWorkflow and waits for its result.
// Only one manual run is allowed at a time.
func (c *ReconcileClient) RunReconcile(ctx context.Context) (*domain.ReconcileResult, error) {
	workflowID := ManualReconcileWorkflowID

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                 workflowID,
		TaskQueue:          c.taskQueue,
		WorkflowRunTimeout: c.runTimeout,
	}, workflows.ReconcileLabelingJobWorkflow)
	if err != nil {
		return nil, wrapTemporalError("RunReconcile", err, workflowID)
	}

	var result domain.ReconcileResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, &TemporalError{Op: "RunReconcile", Kind: ErrWorkflowFailed, WorkflowID: workflowID, Err: err}
	}
	return &result, nil
}

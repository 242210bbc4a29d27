package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/temporal/activities"
)

func TestReconcileLabelingJobWorkflow_Running(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var labelingAct *activities.LabelingActivities
	env.OnActivity(labelingAct.GetLabelingJobState, mock.Anything).Return(
		domain.LabelingJobState{JobName: "doc-review-1", Status: domain.LabelingJobRunning}, nil)

	env.ExecuteWorkflow(ReconcileLabelingJobWorkflow)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result domain.ReconcileResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, domain.ReconcileNoop, result.Action)
	assert.Equal(t, "doc-review-1", result.ObservedJob)
	env.AssertNotCalled(t, "CreateLabelingJob", mock.Anything, mock.Anything)
}

func TestReconcileLabelingJobWorkflow_CreatesWhenStopped(t *testing.T) {
	for _, status := range []domain.LabelingJobStatus{
		domain.LabelingJobNone,
		domain.LabelingJobStopped,
		domain.LabelingJobFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			var labelingAct *activities.LabelingActivities
			observed := domain.LabelingJobState{JobName: "doc-review-1", Status: status}
			env.OnActivity(labelingAct.GetLabelingJobState, mock.Anything).Return(observed, nil)
			env.OnActivity(labelingAct.CreateLabelingJob, mock.Anything, activities.CreateLabelingJobInput{Observed: observed}).Return(
				domain.ReconcileResult{Action: domain.ReconcileCreated, ObservedStatus: status, CreatedJob: "doc-review-2"}, nil).Once()

			env.ExecuteWorkflow(ReconcileLabelingJobWorkflow)

			require.NoError(t, env.GetWorkflowError())
			var result domain.ReconcileResult
			require.NoError(t, env.GetWorkflowResult(&result))
			assert.Equal(t, domain.ReconcileCreated, result.Action)
			assert.Equal(t, "doc-review-2", result.CreatedJob)
			env.AssertNumberOfCalls(t, "CreateLabelingJob", 1)
		})
	}
}

func TestReconcileLabelingJobWorkflow_CreateFailureNotRetried(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var labelingAct *activities.LabelingActivities
	env.OnActivity(labelingAct.GetLabelingJobState, mock.Anything).Return(
		domain.LabelingJobState{Status: domain.LabelingJobFailed}, nil)
	env.OnActivity(labelingAct.CreateLabelingJob, mock.Anything, mock.Anything).Return(
		domain.ReconcileResult{}, temporal.NewNonRetryableApplicationError("quota exceeded", activities.ErrTypeCreateJob, nil))

	env.ExecuteWorkflow(ReconcileLabelingJobWorkflow)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, activities.ErrTypeCreateJob, appErr.Type())
	env.AssertNumberOfCalls(t, "CreateLabelingJob", 1)
}

func TestReconcileLabelingJobWorkflow_ReadRetried(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	var labelingAct *activities.LabelingActivities
	env.OnActivity(labelingAct.GetLabelingJobState, mock.Anything).Return(
		domain.LabelingJobState{}, errors.New("throttled")).Once()
	env.OnActivity(labelingAct.GetLabelingJobState, mock.Anything).Return(
		domain.LabelingJobState{JobName: "doc-review-1", Status: domain.LabelingJobRunning}, nil).Once()

	env.ExecuteWorkflow(ReconcileLabelingJobWorkflow)

	require.NoError(t, env.GetWorkflowError())
	env.AssertNumberOfCalls(t, "GetLabelingJobState", 2)
}

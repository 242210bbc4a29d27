package activities

import "github.com/helixir/document-review-service/internal/domain"

// ErrTypeCreateJob is the application error type of a failed job creation.
// Workflows must not retry it.
const ErrTypeCreateJob = "CreateJobError"

// CreateLabelingJobInput carries the state observed by GetLabelingJobState.
type CreateLabelingJobInput struct {
	Observed domain.LabelingJobState
}

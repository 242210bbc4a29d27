package domain

import (
	"fmt"
	"time"
)

// TrackingStatus is the lifecycle state of a JobTrackingRecord.
type TrackingStatus string

const (
	// TrackingStatusOpen means pages are still awaiting review.
	TrackingStatusOpen TrackingStatus = "open"
	// TrackingStatusComplete means every expected page has been reviewed and
	// the completion notification has been committed.
	TrackingStatusComplete TrackingStatus = "complete"
)

// IsTerminal reports whether the status cannot change any further.
func (s TrackingStatus) IsTerminal() bool {
	return s == TrackingStatusComplete
}

// JobTrackingRecord is the durable per-job aggregate of reviewed pages.
type JobTrackingRecord struct {
	JobID      string
	DocumentID string
	// TotalPages is nil until the expected page count is known.
	TotalPages      *int
	ReviewedPageIDs []string
	LastPageSeen    bool
	Status          TrackingStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// ReviewedCount returns the number of distinct reviewed pages.
func (r *JobTrackingRecord) ReviewedCount() int {
	return len(r.ReviewedPageIDs)
}

// Satisfied reports whether the completion predicate holds for the record.
// The store evaluates the same predicate atomically; this mirror exists for
// callers that only hold a snapshot.
func (r *JobTrackingRecord) Satisfied() bool {
	if r.TotalPages != nil {
		return r.ReviewedCount() >= *r.TotalPages
	}
	return r.LastPageSeen
}

// ReviewCompletionEvent signals that one page's review task finished.
type ReviewCompletionEvent struct {
	JobID      string    `json:"job_id" validate:"required"`
	DocumentID string    `json:"document_id"`
	PageID     string    `json:"page_id" validate:"required"`
	ReviewedAt time.Time `json:"reviewed_at"`
	// LastPage marks the terminal page of a job whose page count was not
	// registered ahead of time.
	LastPage bool `json:"last_page,omitempty"`
	// ExpectedPages optionally carries the page count alongside a terminal marker.
	ExpectedPages int `json:"expected_pages,omitempty" validate:"gte=0"`
}

// Validate checks the event against its struct tags.
func (e ReviewCompletionEvent) Validate() error {
	return validateStruct("review completion event", e)
}

// CompletionOutcome is the result of recording one completion event.
type CompletionOutcome string

const (
	// OutcomeNoop means the event did not complete the job, either because
	// pages are still pending, the page was a duplicate, or another writer
	// already completed it.
	OutcomeNoop CompletionOutcome = "noop"
	// OutcomeCompleted means this event flipped the job to complete and the
	// notification was committed.
	OutcomeCompleted CompletionOutcome = "completed"
)

// AddPageResult is what the store reports back from the atomic page add.
type AddPageResult struct {
	Record *JobTrackingRecord
	// Added is false when the page id was already in the set.
	Added bool
	// Created is true when the add created the record.
	Created bool
}

// JobCompletedMessage is the human-readable notification text.
func JobCompletedMessage(jobID string) string {
	return fmt.Sprintf("Job %s has completed reviewing all sent pages.", jobID)
}

// JobCompletedSubject is the notification subject line.
const JobCompletedSubject = "Job Complete"

package repository

import (
	"context"
	"time"

	"github.com/helixir/document-review-service/internal/domain"
)

// CompletionHook runs inside the transaction that flipped a record to
// complete. Returning an error rolls the flip back.
type CompletionHook func(ctx context.Context, tx DBTX, rec *domain.JobTrackingRecord) error

// AddPageInput describes one reviewed page.
type AddPageInput struct {
	JobID      string
	DocumentID string
	PageID     string
	// LastPage ORs into last_page_seen.
	LastPage bool
	// TotalPages fills total_pages only when it is still NULL. Zero means unknown.
	TotalPages int
	At         time.Time
}

// TrackingRepository persists JobTrackingRecords.
type TrackingRepository interface {
	// AddPage adds PageID to the record's reviewed set if it is not already
	// present, creating the record if needed, and returns the record as it
	// stands after the statement. The whole step is one atomic upsert.
	AddPage(ctx context.Context, in AddPageInput) (*domain.AddPageResult, error)

	// RegisterTotal records the expected page count for a job. An existing
	// non-NULL total is kept; the returned record shows the effective value.
	RegisterTotal(ctx context.Context, jobID, documentID string, total int, at time.Time) (*domain.JobTrackingRecord, error)

	// CompleteIfSatisfied flips an open record whose completion predicate
	// holds to complete and calls hook in the same transaction. It returns
	// the completed record and true only for the caller whose update won.
	CompleteIfSatisfied(ctx context.Context, jobID string, at time.Time, hook CompletionHook) (*domain.JobTrackingRecord, bool, error)

	// Get returns the record for jobID.
	// Returns domain.ErrNotFound if no record exists.
	Get(ctx context.Context, jobID string) (*domain.JobTrackingRecord, error)

	// ListOpen returns open records ordered by last update, oldest first.
	ListOpen(ctx context.Context, limit int) ([]*domain.JobTrackingRecord, error)
}

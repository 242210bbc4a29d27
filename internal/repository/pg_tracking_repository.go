package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/domain"
)

// Compile-time interface verification.
var _ TrackingRepository = (*PgTrackingRepository)(nil)

const trackingColumns = `job_id, document_id, total_pages, reviewed_page_ids,
		last_page_seen, status, created_at, updated_at, completed_at`

// completionPredicate is the single definition of "every expected page has
// been reviewed". domain.JobTrackingRecord.Satisfied mirrors it.
const completionPredicate = `((total_pages IS NOT NULL AND cardinality(reviewed_page_ids) >= total_pages)
		OR (total_pages IS NULL AND last_page_seen))`

// addPageQuery inserts the record or appends $4 to its reviewed set. The
// conflict WHERE is checked against the locked, latest row version, so a page
// that is already present returns no row, even under concurrent delivery.
const addPageQuery = `
	INSERT INTO job_tracking_records AS r (
		job_id, document_id, total_pages, reviewed_page_ids,
		last_page_seen, status, created_at, updated_at
	) VALUES (
		$1, $2, $3, ARRAY[$4::text],
		$5, 'open', $6, $6
	)
	ON CONFLICT (job_id) DO UPDATE SET
		reviewed_page_ids = array_append(r.reviewed_page_ids, $4::text),
		last_page_seen = r.last_page_seen OR EXCLUDED.last_page_seen,
		total_pages = COALESCE(r.total_pages, EXCLUDED.total_pages),
		document_id = CASE WHEN r.document_id = '' THEN EXCLUDED.document_id ELSE r.document_id END,
		updated_at = EXCLUDED.updated_at
	WHERE NOT ($4::text = ANY(r.reviewed_page_ids))
	RETURNING ` + trackingColumns + `,
		(xmax = 0) AS created`

// mergeDuplicateQuery folds the remaining fields of a duplicate page into
// the record without touching the reviewed set.
const mergeDuplicateQuery = `
	UPDATE job_tracking_records AS r SET
		last_page_seen = r.last_page_seen OR $4,
		total_pages = COALESCE(r.total_pages, $3),
		document_id = CASE WHEN r.document_id = '' THEN $2 ELSE r.document_id END,
		updated_at = $5
	WHERE job_id = $1
	RETURNING ` + trackingColumns

const registerTotalQuery = `
	INSERT INTO job_tracking_records AS r (
		job_id, document_id, total_pages, status, created_at, updated_at
	) VALUES (
		$1, $2, $3, 'open', $4, $4
	)
	ON CONFLICT (job_id) DO UPDATE SET
		total_pages = COALESCE(r.total_pages, EXCLUDED.total_pages),
		document_id = CASE WHEN r.document_id = '' THEN EXCLUDED.document_id ELSE r.document_id END,
		updated_at = EXCLUDED.updated_at
	RETURNING ` + trackingColumns

const completeQuery = `
	UPDATE job_tracking_records SET
		status = 'complete',
		completed_at = $2,
		updated_at = $2
	WHERE job_id = $1
		AND status = 'open'
		AND ` + completionPredicate + `
	RETURNING ` + trackingColumns

// PgTrackingRepository is a PostgreSQL implementation of TrackingRepository.
type PgTrackingRepository struct {
	db DBTX
}

// NewPgTrackingRepository creates a new PostgreSQL tracking repository.
func NewPgTrackingRepository(db DBTX) *PgTrackingRepository {
	return &PgTrackingRepository{db: db}
}

// AddPage atomically adds a reviewed page to the job's record. A page that
// is already recorded is reported with Added false; its last-page marker and
// total are still merged.
func (r *PgTrackingRepository) AddPage(ctx context.Context, in AddPageInput) (*domain.AddPageResult, error) {
	if in.JobID == "" {
		return nil, domain.NewMalformedInputError("add page", "job id is required", nil)
	}
	if in.PageID == "" {
		return nil, domain.NewMalformedInputError("add page", "page id is required", nil)
	}
	if in.TotalPages < 0 {
		return nil, domain.NewMalformedInputError("add page", "total pages cannot be negative", nil)
	}
	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	total := nullPositive(in.TotalPages)
	row := r.db.QueryRow(ctx, addPageQuery,
		in.JobID, in.DocumentID, total, in.PageID, in.LastPage, at)

	var (
		dest    recordScanDest
		created bool
	)
	err := row.Scan(append(dest.destinations(), &created)...)
	if err == nil {
		return &domain.AddPageResult{Record: dest.finalize(), Added: true, Created: created}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to add page: %w", database.Classify("add_page", err))
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, mergeDuplicateQuery,
		in.JobID, in.DocumentID, total, in.LastPage, at))
	if err != nil {
		return nil, fmt.Errorf("failed to merge duplicate page: %w", database.Classify("add_page", err))
	}
	return &domain.AddPageResult{Record: rec}, nil
}

// RegisterTotal records the expected page count for a job.
func (r *PgTrackingRepository) RegisterTotal(ctx context.Context, jobID, documentID string, total int, at time.Time) (*domain.JobTrackingRecord, error) {
	if jobID == "" {
		return nil, domain.NewMalformedInputError("register total", "job id is required", nil)
	}
	if total < 1 {
		return nil, domain.NewMalformedInputError("register total", fmt.Sprintf("total pages must be positive, got %d", total), nil)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, registerTotalQuery, jobID, documentID, total, at))
	if err != nil {
		return nil, fmt.Errorf("failed to register total pages: %w", database.Classify("register_total", err))
	}
	return rec, nil
}

// CompleteIfSatisfied is the completion gate.
//
// The conditional UPDATE and the hook run in one transaction opened on the
// repository's connection. When the repository already holds a transaction
// that is a savepoint, and the caller commits.
func (r *PgTrackingRepository) CompleteIfSatisfied(ctx context.Context, jobID string, at time.Time, hook CompletionHook) (*domain.JobTrackingRecord, bool, error) {
	if jobID == "" {
		return nil, false, domain.NewMalformedInputError("complete", "job id is required", nil)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	beginner, ok := r.db.(database.TxBeginner)
	if !ok {
		return r.completeInTx(ctx, r.db, jobID, at, hook)
	}

	var (
		rec       *domain.JobTrackingRecord
		completed bool
	)
	err := database.WithTx(ctx, beginner, "complete", func(tx pgx.Tx) error {
		var err error
		rec, completed, err = r.completeInTx(ctx, tx, jobID, at, hook)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return rec, completed, nil
}

func (r *PgTrackingRepository) completeInTx(ctx context.Context, tx DBTX, jobID string, at time.Time, hook CompletionHook) (*domain.JobTrackingRecord, bool, error) {
	rec, err := scanRecord(tx.QueryRow(ctx, completeQuery, jobID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Predicate not met, or another writer already completed the job.
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to complete job: %w", database.Classify("complete", err))
	}

	if hook != nil {
		if err := hook(ctx, tx, rec); err != nil {
			return nil, false, fmt.Errorf("completion hook failed: %w", database.Classify("complete_hook", err))
		}
	}
	return rec, true, nil
}

// Get retrieves a tracking record by job ID.
func (r *PgTrackingRepository) Get(ctx context.Context, jobID string) (*domain.JobTrackingRecord, error) {
	query := `SELECT ` + trackingColumns + ` FROM job_tracking_records WHERE job_id = $1`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("tracking record", jobID)
		}
		return nil, fmt.Errorf("failed to get tracking record: %w", database.Classify("get", err))
	}
	return rec, nil
}

// ListOpen returns open tracking records, least recently updated first.
func (r *PgTrackingRepository) ListOpen(ctx context.Context, limit int) ([]*domain.JobTrackingRecord, error) {
	query := `SELECT ` + trackingColumns + `
		FROM job_tracking_records
		WHERE status = 'open'
		ORDER BY updated_at ASC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list open records: %w", database.Classify("list_open", err))
	}
	defer rows.Close()

	var records []*domain.JobTrackingRecord
	for rows.Next() {
		var dest recordScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}
		records = append(records, dest.finalize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracking records: %w", database.Classify("list_open", err))
	}
	return records, nil
}

// recordScanDest holds scan targets for trackingColumns.
type recordScanDest struct {
	rec    domain.JobTrackingRecord
	status string
}

func (d *recordScanDest) destinations() []interface{} {
	return []interface{}{
		&d.rec.JobID, &d.rec.DocumentID, &d.rec.TotalPages, &d.rec.ReviewedPageIDs,
		&d.rec.LastPageSeen, &d.status, &d.rec.CreatedAt, &d.rec.UpdatedAt, &d.rec.CompletedAt,
	}
}

func (d *recordScanDest) finalize() *domain.JobTrackingRecord {
	rec := d.rec
	rec.Status = domain.TrackingStatus(d.status)
	if rec.ReviewedPageIDs == nil {
		rec.ReviewedPageIDs = []string{}
	}
	return &rec
}

func scanRecord(row pgx.Row) (*domain.JobTrackingRecord, error) {
	var dest recordScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}

// nullPositive maps zero to SQL NULL.
func nullPositive(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/document-review-service/internal/domain"
)

var trackingColumnNames = []string{
	"job_id", "document_id", "total_pages", "reviewed_page_ids",
	"last_page_seen", "status", "created_at", "updated_at", "completed_at",
}

func intPtr(n int) *int { return &n }

func recordRow(rec domain.JobTrackingRecord) []interface{} {
	return []interface{}{
		rec.JobID, rec.DocumentID, rec.TotalPages, rec.ReviewedPageIDs,
		rec.LastPageSeen, string(rec.Status), rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	}
}

func newTestRecord() domain.JobTrackingRecord {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.JobTrackingRecord{
		JobID:           "job-123",
		DocumentID:      "invoice.pdf",
		TotalPages:      intPtr(3),
		ReviewedPageIDs: []string{"job-123/1"},
		Status:          domain.TrackingStatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
		CompletedAt:     (*time.Time)(nil),
	}
}

func TestPgTrackingRepository_AddPage(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	t.Run("adds new page and reports it", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)
		rec := newTestRecord()
		rec.ReviewedPageIDs = []string{"job-123/1", "job-123/2"}

		cols := append(append([]string{}, trackingColumnNames...), "created")
		mock.ExpectQuery("INSERT INTO job_tracking_records AS r .* ON CONFLICT \\(job_id\\) DO UPDATE .* WHERE NOT").
			WithArgs("job-123", "invoice.pdf", pgxmock.AnyArg(), "job-123/2", false, at).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(append(recordRow(rec), false)...))

		result, err := repo.AddPage(ctx, AddPageInput{
			JobID:      "job-123",
			DocumentID: "invoice.pdf",
			PageID:     "job-123/2",
			At:         at,
		})
		require.NoError(t, err)
		assert.True(t, result.Added)
		assert.False(t, result.Created)
		assert.Equal(t, 2, result.Record.ReviewedCount())
		assert.Equal(t, domain.TrackingStatusOpen, result.Record.Status)
		require.NotNil(t, result.Record.TotalPages)
		assert.Equal(t, 3, *result.Record.TotalPages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate page is reported as not added", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)
		rec := newTestRecord()

		cols := append(append([]string{}, trackingColumnNames...), "created")
		mock.ExpectQuery("INSERT INTO job_tracking_records").
			WithArgs("job-123", "", pgxmock.AnyArg(), "job-123/1", false, at).
			WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery("UPDATE job_tracking_records AS r SET").
			WithArgs("job-123", "", pgxmock.AnyArg(), false, at).
			WillReturnRows(pgxmock.NewRows(trackingColumnNames).AddRow(recordRow(rec)...))

		result, err := repo.AddPage(ctx, AddPageInput{JobID: "job-123", PageID: "job-123/1", At: at})
		require.NoError(t, err)
		assert.False(t, result.Added)
		assert.False(t, result.Created)
		assert.Equal(t, []string{"job-123/1"}, result.Record.ReviewedPageIDs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate page still merges the last page marker", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)
		rec := newTestRecord()
		rec.TotalPages = nil
		rec.LastPageSeen = true

		cols := append(append([]string{}, trackingColumnNames...), "created")
		mock.ExpectQuery("INSERT INTO job_tracking_records").
			WithArgs("job-123", "", pgxmock.AnyArg(), "job-123/1", true, at).
			WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery("UPDATE job_tracking_records AS r SET\\s+last_page_seen = r.last_page_seen OR \\$4").
			WithArgs("job-123", "", pgxmock.AnyArg(), true, at).
			WillReturnRows(pgxmock.NewRows(trackingColumnNames).AddRow(recordRow(rec)...))

		result, err := repo.AddPage(ctx, AddPageInput{JobID: "job-123", PageID: "job-123/1", LastPage: true, At: at})
		require.NoError(t, err)
		assert.False(t, result.Added)
		assert.True(t, result.Record.LastPageSeen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("merge failure is store unavailable", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		cols := append(append([]string{}, trackingColumnNames...), "created")
		mock.ExpectQuery("INSERT INTO job_tracking_records").
			WithArgs("job-123", "", pgxmock.AnyArg(), "job-123/1", false, at).
			WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery("UPDATE job_tracking_records AS r SET").
			WithArgs("job-123", "", pgxmock.AnyArg(), false, at).
			WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})

		_, err = repo.AddPage(ctx, AddPageInput{JobID: "job-123", PageID: "job-123/1", At: at})
		assert.True(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects missing identifiers", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		_, err = repo.AddPage(ctx, AddPageInput{PageID: "p"})
		assert.ErrorIs(t, err, domain.ErrMalformedInput)

		_, err = repo.AddPage(ctx, AddPageInput{JobID: "j"})
		assert.ErrorIs(t, err, domain.ErrMalformedInput)

		_, err = repo.AddPage(ctx, AddPageInput{JobID: "j", PageID: "p", TotalPages: -1})
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection failure is store unavailable", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		mock.ExpectQuery("INSERT INTO job_tracking_records").
			WithArgs("job-123", "", pgxmock.AnyArg(), "job-123/1", true, at).
			WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

		_, err = repo.AddPage(ctx, AddPageInput{JobID: "job-123", PageID: "job-123/1", LastPage: true, At: at})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.True(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("permanent failure is not retryable", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		mock.ExpectQuery("INSERT INTO job_tracking_records").
			WithArgs("job-123", "", pgxmock.AnyArg(), "job-123/1", false, at).
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

		_, err = repo.AddPage(ctx, AddPageInput{JobID: "job-123", PageID: "job-123/1", At: at})
		require.Error(t, err)
		assert.False(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgTrackingRepository_RegisterTotal(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("registers total", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)
		rec := newTestRecord()
		rec.ReviewedPageIDs = []string{}

		mock.ExpectQuery("INSERT INTO job_tracking_records AS r .* total_pages = COALESCE\\(r.total_pages, EXCLUDED.total_pages\\)").
			WithArgs("job-123", "invoice.pdf", 3, at).
			WillReturnRows(pgxmock.NewRows(trackingColumnNames).AddRow(recordRow(rec)...))

		got, err := repo.RegisterTotal(ctx, "job-123", "invoice.pdf", 3, at)
		require.NoError(t, err)
		require.NotNil(t, got.TotalPages)
		assert.Equal(t, 3, *got.TotalPages)
		assert.Equal(t, 0, got.ReviewedCount())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive totals", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		_, err = repo.RegisterTotal(ctx, "job-123", "doc", 0, at)
		assert.ErrorIs(t, err, domain.ErrMalformedInput)

		_, err = repo.RegisterTotal(ctx, "", "doc", 2, at)
		assert.ErrorIs(t, err, domain.ErrMalformedInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgTrackingRepository_CompleteIfSatisfied(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	completedRecord := func() domain.JobTrackingRecord {
		rec := newTestRecord()
		rec.ReviewedPageIDs = []string{"job-123/1", "job-123/2", "job-123/3"}
		rec.Status = domain.TrackingStatusComplete
		rec.CompletedAt = &at
		return rec
	}

	t.Run("winner flips status and runs hook in transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE job_tracking_records SET .* WHERE job_id = \\$1 AND status = 'open'").
			WithArgs("job-123", at).
			WillReturnRows(pgxmock.NewRows(trackingColumnNames).AddRow(recordRow(completedRecord())...))
		mock.ExpectExec("INSERT INTO outbox_events").
			WithArgs("job-123").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		hookCalls := 0
		rec, completed, err := repo.CompleteIfSatisfied(ctx, "job-123", at, func(ctx context.Context, tx DBTX, rec *domain.JobTrackingRecord) error {
			hookCalls++
			_, err := tx.Exec(ctx, "INSERT INTO outbox_events (aggregate_id) VALUES ($1)", rec.JobID)
			return err
		})
		require.NoError(t, err)
		assert.True(t, completed)
		assert.Equal(t, 1, hookCalls)
		assert.Equal(t, domain.TrackingStatusComplete, rec.Status)
		require.NotNil(t, rec.CompletedAt)
		assert.Equal(t, at, *rec.CompletedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row means not completed and hook is skipped", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE job_tracking_records SET").
			WithArgs("job-123", at).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectCommit()

		rec, completed, err := repo.CompleteIfSatisfied(ctx, "job-123", at, func(context.Context, DBTX, *domain.JobTrackingRecord) error {
			t.Fatal("hook must not run")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, completed)
		assert.Nil(t, rec)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hook failure rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE job_tracking_records SET").
			WithArgs("job-123", at).
			WillReturnRows(pgxmock.NewRows(trackingColumnNames).AddRow(recordRow(completedRecord())...))
		mock.ExpectRollback()

		hookErr := errors.New("outbox insert failed")
		_, completed, err := repo.CompleteIfSatisfied(ctx, "job-123", at, func(context.Context, DBTX, *domain.JobTrackingRecord) error {
			return hookErr
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, hookErr)
		assert.False(t, completed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure is store unavailable", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "57P03"})

		_, _, err = repo.CompleteIfSatisfied(ctx, "job-123", at, nil)
		require.Error(t, err)
		assert.True(t, domain.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgTrackingRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns record", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)
		rec := newTestRecord()
		rec.TotalPages = (*int)(nil)
		rec.LastPageSeen = true

		mock.ExpectQuery("SELECT .* FROM job_tracking_records WHERE job_id = \\$1").
			WithArgs("job-123").
			WillReturnRows(pgxmock.NewRows(trackingColumnNames).AddRow(recordRow(rec)...))

		got, err := repo.Get(ctx, "job-123")
		require.NoError(t, err)
		assert.Nil(t, got.TotalPages)
		assert.True(t, got.LastPageSeen)
		assert.True(t, got.Satisfied())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record is not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgTrackingRepository(mock)

		mock.ExpectQuery("SELECT .* FROM job_tracking_records WHERE job_id = \\$1").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err = repo.Get(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgTrackingRepository_ListOpen(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgTrackingRepository(mock)
	first := newTestRecord()
	second := newTestRecord()
	second.JobID = "job-456"

	mock.ExpectQuery("SELECT .* FROM job_tracking_records\\s+WHERE status = 'open'").
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(trackingColumnNames).
			AddRow(recordRow(first)...).
			AddRow(recordRow(second)...))

	records, err := repo.ListOpen(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "job-123", records[0].JobID)
	assert.Equal(t, "job-456", records[1].JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-5))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, maxListLimit, clampLimit(maxListLimit+1))
}

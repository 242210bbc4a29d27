// Package tracker records reviewed pages per document job and emits the
// "all pages reviewed" notification exactly once per job.
//
// Every state change goes through two store primitives: an atomic
// conditional add of the page id, and a conditional OPEN to COMPLETE update
// that writes the notification to the outbox in the same transaction. The
// tracker itself holds no state and can run in any number of replicas.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/messaging"
	"github.com/helixir/document-review-service/internal/observability"
	"github.com/helixir/document-review-service/internal/repository"
)

// Sources of completion events, used as a metrics label.
const (
	SourceKafka  = "kafka"
	SourceHTTP   = "http"
	SourceDirect = "direct"
)

// ExpectedPageCount reports the expected page count of a job when the
// caller knows it out of band.
type ExpectedPageCount func(jobID string) (int, bool)

// Notifier writes the completion notification using the completing
// transaction.
type Notifier interface {
	PublishJobCompleted(ctx context.Context, q database.DBTX, rec *domain.JobTrackingRecord, completedAt time.Time, topic, correlationID string) error
}

// Config holds tracker settings.
type Config struct {
	// NotificationTopic receives the completion notification.
	NotificationTopic string
	// InitialBackoff is the first delay after a store failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between store retries.
	MaxBackoff time.Duration
	// MaxElapsed bounds total retry time within one invocation.
	MaxElapsed time.Duration
	// HandlerTimeout is reported in delivery timeout errors.
	HandlerTimeout time.Duration
}

// Tracker is the completion tracker.
type Tracker struct {
	repo     repository.TrackingRepository
	notifier Notifier
	cfg      Config
	metrics  *observability.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a Tracker.
func New(repo repository.TrackingRepository, notifier Notifier, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Tracker {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Tracker{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "tracker").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage decodes a review completion event from the broker and
// records it.
func (t *Tracker) HandleMessage(ctx context.Context, msg messaging.Message) error {
	var event domain.ReviewCompletionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return domain.NewMalformedInputError("review completion event", "invalid JSON", err)
	}
	_, err := t.RecordCompletionFrom(ctx, SourceKafka, event, nil)
	return err
}

// RecordCompletion records that one page of a job was reviewed.
func (t *Tracker) RecordCompletion(ctx context.Context, event domain.ReviewCompletionEvent, expected ExpectedPageCount) (domain.CompletionOutcome, error) {
	return t.RecordCompletionFrom(ctx, SourceDirect, event, expected)
}

// RecordCompletionFrom is RecordCompletion with the event source named for
// metrics.
//
// The page id is added to the job's reviewed set in one atomic upsert, so
// duplicates leave the set unchanged. The completion gate then flips the
// record to complete only if it is still open and every expected page is
// present; only the caller whose update wins gets OutcomeCompleted, and the
// notification is committed together with that flip.
func (t *Tracker) RecordCompletionFrom(ctx context.Context, source string, event domain.ReviewCompletionEvent, expected ExpectedPageCount) (domain.CompletionOutcome, error) {
	if err := event.Validate(); err != nil {
		return domain.OutcomeNoop, err
	}

	logger := observability.WithJobContext(t.logger, event.JobID, event.DocumentID).
		With().Str("page_id", event.PageID).Str("source", source).Logger()

	total := event.ExpectedPages
	if total == 0 && expected != nil {
		if n, ok := expected(event.JobID); ok && n > 0 {
			total = n
		}
	}

	at := event.ReviewedAt
	if at.IsZero() {
		at = t.now()
	}

	var added *domain.AddPageResult
	err := t.retry(ctx, "add_page", func() error {
		res, err := t.repo.AddPage(ctx, repository.AddPageInput{
			JobID:      event.JobID,
			DocumentID: event.DocumentID,
			PageID:     event.PageID,
			LastPage:   event.LastPage,
			TotalPages: total,
			At:         at,
		})
		added = res
		return err
	})
	if err != nil {
		return domain.OutcomeNoop, t.wrap(ctx, err)
	}

	t.metrics.RecordCompletionReceived(source, !added.Added)

	rec := added.Record
	if added.Created && rec.TotalPages == nil {
		logger.Warn().Msg("completion received for a job with no registered page count")
	}
	if !added.Added {
		logger.Debug().Msg("duplicate page completion")
	}

	if rec.Status.IsTerminal() {
		return domain.OutcomeNoop, nil
	}
	if !rec.Satisfied() {
		logger.Debug().
			Int("reviewed", rec.ReviewedCount()).
			Interface("total_pages", rec.TotalPages).
			Msg("job still has pages pending review")
		return domain.OutcomeNoop, nil
	}

	return t.complete(ctx, event.JobID, logger)
}

// RegisterExpectedPages records how many pages of a job were sent for
// review. The first registered total wins. Completions that arrived before
// the registration are re-evaluated, so a job whose pages were all reviewed
// early still completes.
func (t *Tracker) RegisterExpectedPages(ctx context.Context, jobID, documentID string, total int) error {
	logger := observability.WithJobContext(t.logger, jobID, documentID)

	var rec *domain.JobTrackingRecord
	err := t.retry(ctx, "register_total", func() error {
		r, err := t.repo.RegisterTotal(ctx, jobID, documentID, total, t.now())
		rec = r
		return err
	})
	if err != nil {
		return t.wrap(ctx, err)
	}

	if rec.TotalPages != nil && *rec.TotalPages != total {
		logger.Warn().
			Int("requested", total).
			Int("registered", *rec.TotalPages).
			Msg("expected page count already registered, keeping the first value")
	} else {
		logger.Info().Int("total_pages", total).Msg("expected page count registered")
	}

	if rec.Status.IsTerminal() || !rec.Satisfied() {
		return nil
	}
	_, err = t.complete(ctx, jobID, logger)
	return err
}

// Get returns the tracking record for jobID.
func (t *Tracker) Get(ctx context.Context, jobID string) (*domain.JobTrackingRecord, error) {
	return t.repo.Get(ctx, jobID)
}

func (t *Tracker) complete(ctx context.Context, jobID string, logger zerolog.Logger) (domain.CompletionOutcome, error) {
	correlationID := observability.CorrelationIDFromContext(ctx)
	hook := func(ctx context.Context, tx repository.DBTX, rec *domain.JobTrackingRecord) error {
		completedAt := t.now()
		if rec.CompletedAt != nil {
			completedAt = *rec.CompletedAt
		}
		return t.notifier.PublishJobCompleted(ctx, tx, rec, completedAt, t.cfg.NotificationTopic, correlationID)
	}

	var (
		rec *domain.JobTrackingRecord
		won bool
	)
	err := t.retry(ctx, "complete", func() error {
		r, ok, err := t.repo.CompleteIfSatisfied(ctx, jobID, t.now(), hook)
		rec, won = r, ok
		return err
	})
	if err != nil {
		return domain.OutcomeNoop, t.wrap(ctx, err)
	}
	if !won {
		logger.Debug().Msg("job already completed by another writer")
		return domain.OutcomeNoop, nil
	}

	t.metrics.RecordJobCompleted()
	logger.Info().
		Int("reviewed_pages", rec.ReviewedCount()).
		Msg("all pages reviewed, completion notification queued")
	return domain.OutcomeCompleted, nil
}

// retry runs fn until it succeeds, fails with a non-retryable error, the
// retry budget is spent, or ctx ends.
func (t *Tracker) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.InitialBackoff
	b.MaxInterval = t.cfg.MaxBackoff
	b.MaxElapsedTime = t.cfg.MaxElapsed

	operation := func() error {
		err := fn()
		if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		t.metrics.RecordStoreRetry(op)
		t.logger.Warn().Err(err).Str("operation", op).Dur("retry_in", next).Msg("tracking store unavailable, retrying")
	}

	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}

func (t *Tracker) wrap(ctx context.Context, err error) error {
	return domain.WrapDeadline(ctx, err, "tracker", t.cfg.HandlerTimeout)
}

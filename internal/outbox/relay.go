package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/internal/config"
	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/domain"
	"github.com/helixir/document-review-service/internal/messaging"
	"github.com/helixir/document-review-service/internal/observability"
)

const maxRetryDelay = time.Hour

// neverDead lists event types that are retried indefinitely. A job whose
// completion notification is dropped would never be reported complete.
var neverDead = map[string]bool{
	domain.EventTypeJobCompleted: true,
}

// errEmptyBatch rolls back a claim that found nothing.
var errEmptyBatch = errors.New("no outbox events due")

// Relay publishes pending outbox rows to Kafka.
type Relay struct {
	db        database.TxBeginner
	store     *PgStore
	publisher messaging.Publisher
	cfg       config.OutboxConfig
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRelay creates an outbox relay.
func NewRelay(db database.TxBeginner, store *PgStore, publisher messaging.Publisher, cfg config.OutboxConfig, metrics *observability.Metrics, logger zerolog.Logger) *Relay {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Relay{
		db:        db,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the configured number of workers and blocks until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().
		Int("workers", r.cfg.Workers).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("starting outbox relay")

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.loop(ctx, worker)
		}(i)
	}
	wg.Wait()

	r.logger.Info().Msg("outbox relay stopped")
	return ctx.Err()
}

func (r *Relay) loop(ctx context.Context, worker int) {
	logger := r.logger.With().Int("worker", worker).Logger()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain without waiting while full batches keep coming back.
		for {
			n, err := r.ProcessBatch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error().Err(err).Msg("outbox batch failed")
				}
				break
			}
			if n < r.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessBatch claims one batch, publishes each event and settles it in the
// same transaction. It returns the number of claimed events.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	var claimed, published int

	err := database.WithTx(ctx, r.db, "outbox_batch", func(tx pgx.Tx) error {
		now := r.now()
		events, err := r.store.Claim(ctx, tx, r.cfg.BatchSize, now)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return errEmptyBatch
		}
		claimed = len(events)

		for _, ev := range events {
			msg := messaging.Message{
				Topic:   ev.Topic,
				Key:     ev.Key,
				Value:   ev.Payload,
				Headers: ev.Headers,
			}

			if pubErr := r.publisher.Publish(ctx, msg); pubErr != nil {
				if err := r.settleFailure(ctx, tx, ev, pubErr, now); err != nil {
					return err
				}
				continue
			}

			if err := r.store.MarkPublished(ctx, tx, ev.EventID, r.now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if errors.Is(err, errEmptyBatch) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("outbox batch: %w", err)
	}

	r.metrics.RecordOutboxPublished(published)
	if published > 0 {
		r.logger.Debug().Int("published", published).Int("claimed", claimed).Msg("relayed outbox events")
	}
	return claimed, nil
}

func (r *Relay) settleFailure(ctx context.Context, tx pgx.Tx, ev PendingEvent, pubErr error, now time.Time) error {
	attempts := ev.Attempts + 1
	exhausted := attempts >= r.cfg.MaxRetries
	dead := exhausted && !neverDead[ev.EventType]
	next := now.Add(retryDelay(r.cfg.RetryBackoff, attempts))

	state := observability.OutboxStateRetry
	event := r.logger.Warn()
	switch {
	case dead:
		state = observability.OutboxStateDead
		event = r.logger.Error()
	case exhausted:
		state = observability.OutboxStateOverdue
		event = r.logger.Error()
	}
	r.metrics.RecordOutboxFailed(state)

	event.Err(pubErr).
		Str("event_id", ev.EventID).
		Str("event_type", ev.EventType).
		Str("aggregate_id", ev.AggregateID).
		Str("topic", ev.Topic).
		Int("attempts", attempts).
		Str("state", state).
		Time("next_attempt_at", next).
		Msg("failed to publish outbox event")

	return r.store.MarkFailed(ctx, tx, ev.EventID, pubErr.Error(), next, dead)
}

// retryDelay doubles base per attempt, capped at maxRetryDelay.
func retryDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

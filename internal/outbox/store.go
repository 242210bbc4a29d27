package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/domain"
)

// PendingEvent is a claimed outbox row.
type PendingEvent struct {
	domain.OutboxEvent
	Attempts int
}

// PgStore reads and writes the outbox_events table. It holds no connection;
// every method runs on the DBTX it is given so inserts join the caller's
// transaction.
type PgStore struct{}

// NewPgStore creates a Postgres outbox store.
func NewPgStore() *PgStore {
	return &PgStore{}
}

// InsertEvent writes event as a pending row.
func (s *PgStore) InsertEvent(ctx context.Context, q database.DBTX, event domain.OutboxEvent) error {
	headers, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	if event.Headers == nil {
		headers = []byte("{}")
	}

	query := `
		INSERT INTO outbox_events (
			event_id, event_version, aggregate_id, aggregate_type, event_type,
			topic, msg_key, payload, headers, created_at, next_attempt_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	_, err = q.Exec(ctx, query,
		event.EventID, event.EventVersion, event.AggregateID, event.AggregateType, event.EventType,
		event.Topic, event.Key, event.Payload, headers, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", database.Classify("outbox_insert", err))
	}
	return nil
}

// Claim locks up to limit due rows. Rows locked by another relay worker are
// skipped. Must run inside a transaction.
func (s *PgStore) Claim(ctx context.Context, q database.DBTX, limit int, now time.Time) ([]PendingEvent, error) {
	query := `
		SELECT event_id::text, event_version, aggregate_id, aggregate_type, event_type,
			topic, msg_key, payload, headers, created_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND dead = FALSE AND next_attempt_at <= $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", database.Classify("outbox_claim", err))
	}
	defer rows.Close()

	var events []PendingEvent
	for rows.Next() {
		var (
			ev      PendingEvent
			headers []byte
		)
		if err := rows.Scan(
			&ev.EventID, &ev.EventVersion, &ev.AggregateID, &ev.AggregateType, &ev.EventType,
			&ev.Topic, &ev.Key, &ev.Payload, &headers, &ev.CreatedAt, &ev.Attempts,
		); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &ev.Headers); err != nil {
				return nil, fmt.Errorf("decode headers of event %s: %w", ev.EventID, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", database.Classify("outbox_claim", err))
	}
	return events, nil
}

// MarkPublished settles delivered rows.
func (s *PgStore) MarkPublished(ctx context.Context, q database.DBTX, eventID string, at time.Time) error {
	_, err := q.Exec(ctx,
		`UPDATE outbox_events SET published_at = $2, attempts = attempts + 1, last_error = NULL WHERE event_id = $1`,
		eventID, at)
	if err != nil {
		return fmt.Errorf("mark event %s published: %w", eventID, database.Classify("outbox_mark", err))
	}
	return nil
}

// MarkFailed records a failed attempt. A dead row is never claimed again.
func (s *PgStore) MarkFailed(ctx context.Context, q database.DBTX, eventID, lastError string, nextAttemptAt time.Time, dead bool) error {
	_, err := q.Exec(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3, dead = $4 WHERE event_id = $1`,
		eventID, lastError, nextAttemptAt, dead)
	if err != nil {
		return fmt.Errorf("mark event %s failed: %w", eventID, database.Classify("outbox_mark", err))
	}
	return nil
}

package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/helixir/document-review-service/internal/database"
	"github.com/helixir/document-review-service/internal/domain"
)

// Inserter is the subset of PgStore needed by the adapter.
type Inserter interface {
	InsertEvent(ctx context.Context, q database.DBTX, event domain.OutboxEvent) error
}

// Adapter inserts events through an Inserter.
type Adapter struct {
	repo Inserter
}

// NewAdapter creates a new Adapter wrapping the given Inserter.
func NewAdapter(repo Inserter) *Adapter {
	return &Adapter{repo: repo}
}

// Create inserts an event into the outbox using q, which is normally the
// transaction that produced the event.
func (a *Adapter) Create(ctx context.Context, q database.DBTX, event domain.OutboxEvent) error {
	if q == nil {
		return fmt.Errorf("outbox adapter: a database handle is required")
	}
	if err := a.repo.InsertEvent(ctx, q, event); err != nil {
		return fmt.Errorf("outbox adapter: insert event: %w", err)
	}
	return nil
}

// Publisher combines the Emitter and Adapter.
type Publisher struct {
	emitter *Emitter
	adapter *Adapter
}

// NewPublisher creates a new Publisher with the given emitter and adapter.
func NewPublisher(emitter *Emitter, adapter *Adapter) *Publisher {
	return &Publisher{
		emitter: emitter,
		adapter: adapter,
	}
}

// Publish emits an event and inserts it into the outbox using q.
func (p *Publisher) Publish(ctx context.Context, q database.DBTX, params EmitParams) error {
	event, err := p.emitter.Emit(params)
	if err != nil {
		return fmt.Errorf("emit event: %w", err)
	}

	if err := p.adapter.Create(ctx, q, event); err != nil {
		return fmt.Errorf("store event: %w", err)
	}

	return nil
}

// PublishJobCompleted stores the "all pages reviewed" notification for rec
// using q, which must be the transaction that completed the record.
func (p *Publisher) PublishJobCompleted(ctx context.Context, q database.DBTX, rec *domain.JobTrackingRecord, completedAt time.Time, topic, correlationID string) error {
	event, err := p.emitter.EmitJobCompleted(rec, completedAt, topic, correlationID)
	if err != nil {
		return fmt.Errorf("emit job completed: %w", err)
	}

	if err := p.adapter.Create(ctx, q, event); err != nil {
		return fmt.Errorf("store job completed: %w", err)
	}

	return nil
}

// Emitter returns the underlying emitter for direct event creation.
func (p *Publisher) Emitter() *Emitter {
	return p.emitter
}

package outbox

import (
	"fmt"
	"time"

	"github.com/helixir/document-review-service/internal/domain"
)

// Header keys attached to every emitted event.
const (
	HeaderSource        = "source"
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderCorrelationID = "correlation_id"
	HeaderSubject       = "subject"
)

const defaultServiceName = "document-review-service"

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service.
	ServiceName string
}

// EmitParams contains the parameters for emitting an event.
type EmitParams struct {
	// AggregateID is the tracked entity, also used as the message key.
	AggregateID string
	// AggregateType names the kind of aggregate.
	AggregateType string
	// EventType is the type of event (e.g., "review.job_completed").
	EventType string
	// Topic is the Kafka topic the relay publishes to.
	Topic string
	// Payload is the event payload that will be JSON-serialized.
	Payload interface{}
	// CorrelationID for request tracing (optional).
	CorrelationID string
	// Subject is a short human-readable title (optional).
	Subject string
}

// Emitter creates outbox events enriched with service headers.
type Emitter struct {
	config EmitterConfig
}

// NewEmitter creates a new Emitter with the given service configuration.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}
	return &Emitter{config: config}
}

// Emit creates an OutboxEvent ready to be inserted into the outbox table.
func (e *Emitter) Emit(params EmitParams) (domain.OutboxEvent, error) {
	if params.AggregateID == "" {
		return domain.OutboxEvent{}, fmt.Errorf("aggregate_id is required")
	}
	if params.EventType == "" {
		return domain.OutboxEvent{}, fmt.Errorf("event_type is required")
	}
	if params.Topic == "" {
		return domain.OutboxEvent{}, fmt.Errorf("topic is required")
	}

	aggregateType := params.AggregateType
	if aggregateType == "" {
		aggregateType = domain.AggregateTrackingRecord
	}

	event, err := domain.NewOutboxEvent(params.EventType, params.AggregateID, aggregateType, params.Payload)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("marshal payload: %w", err)
	}

	headers := map[string]string{
		HeaderSource:    e.config.ServiceName,
		HeaderEventID:   event.EventID,
		HeaderEventType: params.EventType,
	}
	if params.CorrelationID != "" {
		headers[HeaderCorrelationID] = params.CorrelationID
	}
	if params.Subject != "" {
		headers[HeaderSubject] = params.Subject
	}

	return *event.WithTopic(params.Topic).WithHeaders(headers), nil
}

// EmitJobCompleted builds the "all pages reviewed" notification for rec.
func (e *Emitter) EmitJobCompleted(rec *domain.JobTrackingRecord, completedAt time.Time, topic, correlationID string) (domain.OutboxEvent, error) {
	if rec == nil {
		return domain.OutboxEvent{}, fmt.Errorf("tracking record is required")
	}
	return e.Emit(EmitParams{
		AggregateID:   rec.JobID,
		AggregateType: domain.AggregateTrackingRecord,
		EventType:     domain.EventTypeJobCompleted,
		Topic:         topic,
		Payload:       domain.NewJobCompletedPayload(rec, completedAt),
		CorrelationID: correlationID,
		Subject:       domain.JobCompletedSubject,
	})
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for outbox events.
const (
	EventTypeReviewTaskCreated = "review.task_created"
	EventTypeJobCompleted      = "review.job_completed"
)

// Aggregate types.
const (
	AggregateTrackingRecord = "job_tracking_record"
)

// OutboxEvent represents an event to be published via the outbox pattern.
type OutboxEvent struct {
	EventID       string
	EventVersion  int
	AggregateID   string
	AggregateType string
	EventType     string
	Topic         string
	Key           string
	Payload       []byte
	Headers       map[string]string
	CreatedAt     time.Time
}

// NewOutboxEvent creates a new outbox event with the given parameters.
// The payload is JSON-serialized automatically.
func NewOutboxEvent(eventType, aggregateID, aggregateType string, payload interface{}) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		EventID:       uuid.New().String(),
		EventVersion:  1,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Key:           aggregateID,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// WithTopic sets the destination topic.
func (e *OutboxEvent) WithTopic(topic string) *OutboxEvent {
	e.Topic = topic
	return e
}

// WithHeaders sets message headers on the event.
func (e *OutboxEvent) WithHeaders(headers map[string]string) *OutboxEvent {
	e.Headers = headers
	return e
}

// JobCompletedPayload is the payload for review.job_completed events.
type JobCompletedPayload struct {
	JobID         string    `json:"job_id"`
	DocumentID    string    `json:"document_id"`
	TotalPages    *int      `json:"total_pages,omitempty"`
	ReviewedPages int       `json:"reviewed_pages"`
	CompletedAt   time.Time `json:"completed_at"`
	Subject       string    `json:"subject"`
	Message       string    `json:"message"`
}

// NewJobCompletedPayload builds the notification for a completed record.
func NewJobCompletedPayload(rec *JobTrackingRecord, completedAt time.Time) JobCompletedPayload {
	return JobCompletedPayload{
		JobID:         rec.JobID,
		DocumentID:    rec.DocumentID,
		TotalPages:    rec.TotalPages,
		ReviewedPages: rec.ReviewedCount(),
		CompletedAt:   completedAt,
		Subject:       JobCompletedSubject,
		Message:       JobCompletedMessage(rec.JobID),
	}
}

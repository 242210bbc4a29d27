// Package outbox implements the transactional outbox for document review
// notifications.
//
// # Overview
//
// Events that must leave the service exactly when a database change commits
// (today: review.job_completed) are written to the outbox_events table in
// the same transaction as that change. A relay later claims pending rows
// and publishes them to Kafka.
//
// # Components
//
//   - Emitter: Builds domain.OutboxEvent values with service headers
//   - PgStore: Inserts, claims and settles outbox rows in Postgres
//   - Adapter/Publisher: Emit-and-insert in one call, inside a caller's transaction
//   - Relay: Polls pending rows with FOR UPDATE SKIP LOCKED and publishes them
//
// # Delivery
//
// The relay marks a row published only after Kafka acknowledged it, so a
// crash between publish and commit republishes the event. Consumers key on
// event_id (carried as a header) to drop repeats.
//
// # Usage
//
//	emitter := outbox.NewEmitter(outbox.EmitterConfig{ServiceName: "document-review-service"})
//	publisher := outbox.NewPublisher(emitter, outbox.NewAdapter(outbox.NewPgStore()))
//
//	// inside the completion transaction
//	err := publisher.Publish(ctx, tx, outbox.EmitParams{...})
package outbox

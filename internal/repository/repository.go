// Package repository provides the Postgres-backed tracking store for the
// document review service.
//
// # Overview
//
// The store holds one JobTrackingRecord per extraction job. Every mutation
// is a conditional statement keyed by job_id, so concurrent delivery
// workers never read-modify-write a record:
//
//   - AddPage is an INSERT ... ON CONFLICT DO UPDATE that adds a page id to
//     the reviewed set only when absent and returns the updated record. A
//     duplicate page gets no row back and is merged by a plain UPDATE.
//   - RegisterTotal fills total_pages when it is still unknown.
//   - CompleteIfSatisfied flips status from open to complete under the
//     completion predicate and runs a callback in the same transaction.
//     The first writer that flips the row wins; every other caller sees no
//     row and does nothing.
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple
// goroutines. The underlying pgxpool handles connection pooling.
//
// # Error Handling
//
// Transient database failures are returned as *domain.StoreUnavailableError
// (see database.Classify). A missing record is *domain.NotFoundError.
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, cfg, logger)
//	trackingRepo := repository.NewPgTrackingRepository(db)
package repository

import (
	"github.com/helixir/document-review-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
//
// Repository implementations accept DBTX so the same code runs against the
// pool or inside a caller's transaction:
//
//	err := database.WithTx(ctx, db, "register", func(tx pgx.Tx) error {
//	    txRepo := repository.NewPgTrackingRepository(tx)
//	    _, err := txRepo.RegisterTotal(ctx, jobID, documentID, 3, time.Now())
//	    return err
//	})
type DBTX = database.DBTX

// Listing defaults and limits.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

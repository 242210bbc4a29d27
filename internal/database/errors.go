package database

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/document-review-service/internal/domain"
)

// PostgreSQL error codes referenced by the store.
const (
	PgUniqueViolation      = "23505"
	PgSerializationFailure = "40001"
	PgDeadlockDetected     = "40P01"
	PgTooManyConnections   = "53300"
	PgAdminShutdown        = "57P01"
	PgCrashShutdown        = "57P02"
	PgCannotConnectNow     = "57P03"
)

// IsTransient reports whether err is a failure that is expected to clear on
// retry: lost connections, server restarts, contention aborts, and network
// timeouts. Context cancellation is not transient; it belongs to the caller.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgSerializationFailure, PgDeadlockDetected, PgTooManyConnections,
			PgAdminShutdown, PgCrashShutdown, PgCannotConnectNow:
			return true
		}
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == PgUniqueViolation
}

// Classify wraps transient failures of op in a *domain.StoreUnavailableError
// and returns every other error unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return domain.NewStoreUnavailableError(op, err)
	}
	return err
}

// Package domain provides the data model and error taxonomy for the document review service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrConfig indicates a missing or invalid configuration value.
	ErrConfig = errors.New("configuration error")

	// ErrMalformedInput indicates that an input record is missing required
	// fields or cannot be decoded.
	ErrMalformedInput = errors.New("malformed input")

	// ErrStoreUnavailable indicates that a backing store or the broker could
	// not be reached. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCreateJob indicates that the labeling control plane rejected or
	// failed a job creation request.
	ErrCreateJob = errors.New("create labeling job failed")

	// ErrDeliveryTimeout indicates that a handler exceeded its deadline.
	ErrDeliveryTimeout = errors.New("delivery timeout")
)

// ConfigError reports an invalid or missing configuration value.
type ConfigError struct {
	Key     string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Key, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// MalformedInputError reports an input record that cannot be processed.
type MalformedInputError struct {
	Source  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *MalformedInputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed %s: %s", e.Source, e.Message)
}

// Is reports whether target is ErrMalformedInput.
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// Unwrap returns the underlying cause error.
func (e *MalformedInputError) Unwrap() error {
	return e.Cause
}

// StoreUnavailableError reports a failed store or broker operation that can
// be retried.
type StoreUnavailableError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Cause)
}

// Is reports whether target is ErrStoreUnavailable.
func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// Unwrap returns the underlying cause error.
func (e *StoreUnavailableError) Unwrap() error {
	return e.Cause
}

// CreateJobError reports a failed labeling job creation.
type CreateJobError struct {
	JobName    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *CreateJobError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("create labeling job %s failed (status %d): %v", e.JobName, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("create labeling job %s failed: %v", e.JobName, e.Cause)
}

// Is reports whether target is ErrCreateJob.
func (e *CreateJobError) Is(target error) bool {
	return target == ErrCreateJob
}

// Unwrap returns the underlying cause error.
func (e *CreateJobError) Unwrap() error {
	return e.Cause
}

// DeliveryTimeoutError reports a handler that ran past its deadline.
type DeliveryTimeoutError struct {
	Handler string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *DeliveryTimeoutError) Error() string {
	if e.Timeout <= 0 {
		return fmt.Sprintf("%s exceeded its delivery deadline", e.Handler)
	}
	return fmt.Sprintf("%s exceeded delivery deadline of %s", e.Handler, e.Timeout)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *DeliveryTimeoutError) Unwrap() error {
	return ErrDeliveryTimeout
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewConfigError creates a new ConfigError.
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}

// NewMalformedInputError creates a new MalformedInputError.
func NewMalformedInputError(source, message string, cause error) *MalformedInputError {
	return &MalformedInputError{Source: source, Message: message, Cause: cause}
}

// NewStoreUnavailableError creates a new StoreUnavailableError.
func NewStoreUnavailableError(op string, cause error) *StoreUnavailableError {
	return &StoreUnavailableError{Op: op, Cause: cause}
}

// NewCreateJobError creates a new CreateJobError.
func NewCreateJobError(jobName string, statusCode int, cause error) *CreateJobError {
	return &CreateJobError{JobName: jobName, StatusCode: statusCode, Cause: cause}
}

// NewDeliveryTimeoutError creates a new DeliveryTimeoutError.
func NewDeliveryTimeoutError(handler string, timeout time.Duration) *DeliveryTimeoutError {
	return &DeliveryTimeoutError{Handler: handler, Timeout: timeout}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsRetryable reports whether err is a transient failure that the caller
// should re-attempt without acknowledging the input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrDeliveryTimeout)
}

// WrapDeadline converts err into a *DeliveryTimeoutError when it was caused
// by ctx's deadline expiring. Other errors are returned unchanged.
func WrapDeadline(ctx context.Context, err error, handler string, timeout time.Duration) error {
	if err == nil || errors.Is(err, ErrDeliveryTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewDeliveryTimeoutError(handler, timeout)
	}
	return err
}

// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Storage errors
	ErrStorage        = errors.New("storage failure")
	ErrTransaction    = errors.New("transaction failure")
	ErrOptimisticLock = errors.New("optimistic lock failure")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRejected           = errors.New("permanently rejected")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "learning", "timer", "sync"
	Op      string // Operation that failed, e.g. "Insert", "Claim"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Learning domain errors
var (
	ErrSubmissionNotFound  = NewDomainError("learning", "Find", ErrNotFound, "submission not found")
	ErrDuplicateSubmission = NewDomainError("learning", "Insert", ErrAlreadyExists, "submission already exists for this question")
	ErrDuplicateLedger     = NewDomainError("learning", "Insert", ErrAlreadyExists, "ledger entry already exists for this award")
	ErrQuestionNotFound    = NewDomainError("learning", "FindQuestion", ErrNotFound, "question not found")
	ErrLessonNotFound      = NewDomainError("learning", "FindLesson", ErrNotFound, "lesson not found")
	ErrProgressNotFound    = NewDomainError("learning", "FindProgress", ErrNotFound, "progress record not found")
	ErrInvalidAnswerIndex  = NewDomainError("learning", "Validate", ErrValueOutOfRange, "selected answer index out of range")
)

// Timer domain errors
var (
	ErrTimerNotRunning  = NewDomainError("timer", "Transition", ErrInvalidState, "timer is not running")
	ErrTimerNotPaused   = NewDomainError("timer", "Resume", ErrInvalidState, "timer is not paused")
	ErrTimerFinished    = NewDomainError("timer", "Transition", ErrInvalidState, "timer already expired or stopped")
	ErrTimerStateBroken = NewDomainError("timer", "Rehydrate", ErrInvalidState, "persisted timer state missing or corrupt")
)

// Sync domain errors
var (
	ErrQueueItemNotFound = NewDomainError("sync", "Find", ErrNotFound, "sync queue item not found")
	ErrItemNotClaimable  = NewDomainError("sync", "Claim", ErrAlreadyProcessed, "queue item already claimed or finished")
	ErrItemNotParked     = NewDomainError("sync", "Requeue", ErrInvalidState, "only parked items can be requeued")
)

// Remote endpoint errors
var (
	ErrRemoteUnavailable = NewDomainError("remote", "Send", ErrServiceUnavailable, "remote sync endpoint unavailable")
	ErrRemoteTimeout     = NewDomainError("remote", "Send", ErrTimeout, "remote sync request timed out")
	ErrRemoteRejected    = NewDomainError("remote", "Send", ErrRejected, "remote permanently rejected the payload")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
// Callers treat this as a successful no-op: the business key was already
// committed, so there is nothing left to do.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsPermanentRejection checks if the remote rejected a payload for good.
func IsPermanentRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrOptimisticLock)
}

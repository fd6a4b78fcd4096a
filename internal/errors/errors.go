package errors

import (
	stdErrors "errors"
	"fmt"
)

// admissionMarker is implemented by admission-rejection error types so
// callers can classify a rejection without knowing the concrete reason.
type admissionMarker interface {
	error
	isAdmission()
}

// LimitExceededError rejects a subscribe admission because the path already
// carries the configured maximum number of subscribers. No state is mutated.
type LimitExceededError struct {
	Path  string
	Limit uint
	Count int // subscriber count observed at admission time
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("subscriber limit exceeded: path %q has %d subscribers (limit %d)", e.Path, e.Count, e.Limit)
}
func (e *LimitExceededError) isAdmission() {}

// PublisherConflictError rejects a publish admission because the path already
// has an active publisher, regardless of which client holds it.
type PublisherConflictError struct {
	Path string
}

func (e *PublisherConflictError) Error() string {
	return fmt.Sprintf("publisher conflict: path %q already has an active publisher", e.Path)
}
func (e *PublisherConflictError) isAdmission() {}

// ConsistencyError reports an event that references a client/path/session
// combination inconsistent with the current registry state. It is non-fatal:
// the offending event is logged and otherwise a no-op.
type ConsistencyError struct {
	Op  string // high-level operation (e.g. "teardown", "close.cascade")
	Err error  // underlying detail (may be nil)
}

func (e *ConsistencyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("consistency violation: %s", e.Op)
	}
	return fmt.Sprintf("consistency violation: %s: %v", e.Op, e.Err)
}
func (e *ConsistencyError) Unwrap() error { return e.Err }

// IsAdmissionRejected returns true if the error chain contains any admission
// rejection (LimitExceededError or PublisherConflictError).
func IsAdmissionRejected(err error) bool {
	if err == nil {
		return false
	}
	var am admissionMarker
	return stdErrors.As(err, &am)
}

// IsLimitExceeded returns true if err is (or wraps) a LimitExceededError.
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return stdErrors.As(err, &le)
}

// IsPublisherConflict returns true if err is (or wraps) a PublisherConflictError.
func IsPublisherConflict(err error) bool {
	var pc *PublisherConflictError
	return stdErrors.As(err, &pc)
}

// IsConsistencyViolation returns true if err is (or wraps) a ConsistencyError.
func IsConsistencyViolation(err error) bool {
	var ce *ConsistencyError
	return stdErrors.As(err, &ce)
}

// Constructors (encourage contextual wrapping with %w when used by callers).
func NewLimitExceeded(path string, limit uint, count int) error {
	return &LimitExceededError{Path: path, Limit: limit, Count: count}
}

func NewPublisherConflict(path string) error {
	return &PublisherConflictError{Path: path}
}

func NewConsistency(op string, cause error) error {
	return &ConsistencyError{Op: op, Err: cause}
}

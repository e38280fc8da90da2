package services

import (
	"errors"
)

// TransientCapabilityError marks a stage failure worth retrying: timeouts,
// broken connections, provider overload. The pipeline re-queues the document
// until the retry budget runs out.
type TransientCapabilityError struct {
	Capability string
	Err        error
	Message    string
}

func (e *TransientCapabilityError) Error() string {
	if e.Message != "" {
		return e.Capability + ": " + e.Message
	}
	if e.Err != nil {
		return e.Capability + ": " + e.Err.Error()
	}
	return e.Capability + ": transient failure"
}

func (e *TransientCapabilityError) Unwrap() error {
	return e.Err
}

// NewTransientCapabilityError creates a retryable capability error
func NewTransientCapabilityError(capability string, err error, message string) *TransientCapabilityError {
	return &TransientCapabilityError{Capability: capability, Err: err, Message: message}
}

// FatalCapabilityError marks a stage failure that retrying cannot fix:
// unsupported formats, corrupt input, rejected requests. The pipeline fails
// the document immediately regardless of remaining retries.
type FatalCapabilityError struct {
	Capability string
	Err        error
	Message    string
}

func (e *FatalCapabilityError) Error() string {
	if e.Message != "" {
		return e.Capability + ": " + e.Message
	}
	if e.Err != nil {
		return e.Capability + ": " + e.Err.Error()
	}
	return e.Capability + ": fatal failure"
}

func (e *FatalCapabilityError) Unwrap() error {
	return e.Err
}

// NewFatalCapabilityError creates a non-retryable capability error
func NewFatalCapabilityError(capability string, err error, message string) *FatalCapabilityError {
	return &FatalCapabilityError{Capability: capability, Err: err, Message: message}
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	var te *TransientCapabilityError
	return errors.As(err, &te)
}

// IsFatal reports whether err ends processing for the document
func IsFatal(err error) bool {
	var fe *FatalCapabilityError
	return errors.As(err, &fe)
}

// NoSignalError is returned by aggregation when every analysis pass came back
// empty. The caller must not fabricate a default analysis row from it.
type NoSignalError struct {
	DocumentID string
}

func (e *NoSignalError) Error() string {
	return "no usable analysis signal for document: " + e.DocumentID
}

// IsNoSignal reports whether err is a NoSignalError
func IsNoSignal(err error) bool {
	var ns *NoSignalError
	return errors.As(err, &ns)
}

// InvalidQueryError rejects a malformed search request before any backend is
// touched.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// IsInvalidQuery reports whether err is an InvalidQueryError
func IsInvalidQuery(err error) bool {
	var iq *InvalidQueryError
	return errors.As(err, &iq)
}

// ConflictError signals that a write lost to concurrent state it must not
// overwrite, e.g. advancing a document whose stage already moved.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return "conflict on " + e.Resource + ": " + e.Reason
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

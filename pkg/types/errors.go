package types

import (
	"errors"
	"fmt"
)

var (
	ErrDonorNotFound    = &NotFoundError{Kind: "donor"}
	ErrScheduleNotFound = &NotFoundError{Kind: "schedule"}
	ErrSlotNotFound     = &NotFoundError{Kind: "weekly slot"}
	ErrRangeNotFound    = &NotFoundError{Kind: "custom range"}
	ErrDonationNotFound = &NotFoundError{Kind: "donation record"}
	ErrMatchNotFound    = &NotFoundError{Kind: "match"}
	ErrCandidateMissing = &NotFoundError{Kind: "candidate"}
	ErrNoCandidates     = &NotFoundError{Kind: "eligible donor"}
)

// Conflict reasons, matched with errors.Is against a *ConflictError.
var (
	ErrAlreadyFulfilled  = errors.New("request already fulfilled")
	ErrRequestCancelled  = errors.New("request cancelled")
	ErrMatchResolved     = errors.New("match already resolved")
	ErrDonorDoubleBooked = errors.New("donor already accepted another request")
	ErrCandidateResolved = errors.New("candidate already responded")
	ErrMatchExists       = errors.New("request already has an open match")
	ErrVersionMismatch   = errors.New("match was modified concurrently")
	ErrRecordLocked      = errors.New("donation record is locked")
	ErrRecordState       = errors.New("donation record is not in a state that allows this change")
)

// ValidationError reports malformed input. Nothing has been written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PolicyViolation reports well-formed input that a business rule forbids.
type PolicyViolation struct {
	Rule    string
	Message string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Message)
}

// NotFoundError reports an unknown identifier.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is matches any NotFoundError of the same kind, so sentinels like
// ErrMatchNotFound match errors carrying an id.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.ID == "" || t.ID == e.ID)
}

func NotFound(sentinel *NotFoundError, id string) error {
	return &NotFoundError{Kind: sentinel.Kind, ID: id}
}

// ConflictError reports a lost race or a transition the current state
// forbids. Callers may only retry after re-fetching state.
type ConflictError struct {
	Reason error
	Match  *BloodRequestMatch
}

func (e *ConflictError) Error() string {
	if e.Match != nil {
		return fmt.Sprintf("conflict on match %s: %s", e.Match.ID, e.Reason)
	}
	return "conflict: " + e.Reason.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Reason
}

func NewConflict(reason error, m *BloodRequestMatch) error {
	return &ConflictError{Reason: reason, Match: m}
}

package model

import "fmt"

// ValidationError indicates malformed input.
// Transport layers map this to 400 / InvalidArgument.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// Validationf builds a ValidationError with fmt semantics.
func Validationf(format string, args ...any) ValidationError {
	return ValidationError(fmt.Sprintf(format, args...))
}

// NotFoundError indicates an unknown entity id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds a NotFoundError for the given entity kind and id.
func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StateError indicates an invalid lifecycle transition, identifying the
// offending (state, event) pair, or an operation on a non-active session.
type StateError struct {
	State EntryState
	Event EntryEvent
	Msg   string
}

func (e *StateError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("no transition from state %s on event %s", e.State, e.Event)
}

// DeniedError carries the machine-readable reason an entry clearance was refused.
type DeniedError struct {
	Reason DenialReason
	Detail string
}

func (e *DeniedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("entry denied: %s (%s)", e.Reason, e.Detail)
	}
	return "entry denied: " + string(e.Reason)
}

// Denied builds a DeniedError with the given reason code.
func Denied(reason DenialReason, detail string) *DeniedError {
	return &DeniedError{Reason: reason, Detail: detail}
}

// IntegrityError indicates the audit hash chain is broken.
type IntegrityError struct {
	BrokenAt string
}

func (e *IntegrityError) Error() string {
	return "audit chain broken at entry " + e.BrokenAt
}

// TransientError wraps a failure of an auxiliary external dependency
// (weather oracle, facility lookup, notification transport). Callers on the
// safety-critical path catch these at the boundary and substitute a
// documented conservative default.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the named operation.
func Transient(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

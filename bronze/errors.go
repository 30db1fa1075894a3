package bronze

import "fmt"

// TimezoneAwareRequiredError is raised when occurred_at or a payload leaf
// datetime lacks a timezone. Matches TimezoneAwareRequiredError in the
// original implementation.
type TimezoneAwareRequiredError struct {
	Where string // "occurrence" or "payload"
}

func (e *TimezoneAwareRequiredError) Error() string {
	return fmt.Sprintf("timezone-aware datetime required for %s", e.Where)
}

func errTimezoneOccurrence() error { return &TimezoneAwareRequiredError{Where: "occurrence"} }
func errTimezonePayload() error    { return &TimezoneAwareRequiredError{Where: "payload"} }

// UnsupportedPayloadTypeError is raised when a payload leaf is not one of
// the JSON-safe types the dedupe normalizer accepts.
type UnsupportedPayloadTypeError struct {
	GoType string
}

func (e *UnsupportedPayloadTypeError) Error() string {
	return fmt.Sprintf("unsupported payload type: %s", e.GoType)
}

// PersistError indicates the writer observed a unique-constraint conflict
// but could not read the conflicting row back, indicating data loss or an
// external rollback.
type PersistError struct {
	Cause error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("expected existing raw_event after rollback: %v", e.Cause)
}

func (e *PersistError) Unwrap() error { return e.Cause }

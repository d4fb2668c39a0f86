package domain

import "fmt"

// ValidationError reports malformed input or a room collision. Conflict is
// set to the occupying record when the failure is a room collision.
type ValidationError struct {
	Field    string
	Message  string
	Conflict *PatientRecord
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NotFoundError is returned when an operation targets a missing record.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("patient %s not found", e.ID)
}

// InvalidOperationError reports a request that is well formed but
// meaningless, such as swapping a patient with itself.
type InvalidOperationError struct {
	Op     string
	Reason string
}

func (e InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Op, e.Reason)
}

// TransportError wraps a failure talking to the remote store.
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// SerializationError wraps a payload that could not be decoded.
type SerializationError struct {
	Source string
	Err    error
}

func (e SerializationError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Source, e.Err)
}

func (e SerializationError) Unwrap() error { return e.Err }

// internal/telemetry/errors.go
package telemetry

import "fmt"

// ValidationError reports malformed caller input on a single-entity call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a lookup miss on a direct call.
type NotFoundError struct {
	Kind string // "sensor" or "alert"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidTransitionError reports a lifecycle transition attempted from a
// state it is not valid in. It is surfaced to the caller, never fatal to a
// batch or sweep.
type InvalidTransitionError struct {
	AlertID string
	From    AlertStatus
	To      AlertStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("alert %s: cannot go %s -> %s", e.AlertID, e.From, e.To)
}

// internal/telemetry/store.go
package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store lookups that miss. The service layer
// translates it into a typed NotFoundError; stores never return
// nil-and-no-error.
var ErrNotFound = errors.New("telemetry: not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule.
var ErrDuplicate = errors.New("telemetry: duplicate")

// SensorFilter narrows ListSensors.
type SensorFilter struct {
	Status SensorStatus // empty = all
}

// StaleQuery selects sensors eligible for the offline sweep.
type StaleQuery struct {
	SeenBefore time.Time // matches last_seen < SeenBefore, or last_seen unset
}

// SensorStore owns sensor records and their health fields. The two
// conditional writes (TouchSensor, MarkOffline) are pushed down here so the
// backing store can execute them as single atomic statements.
type SensorStore interface {
	InsertSensor(ctx context.Context, s Sensor) error
	GetSensor(ctx context.Context, id string) (Sensor, error)
	ListSensors(ctx context.Context, f SensorFilter) ([]Sensor, error)

	// TouchSensor updates last_seen/last_reading and promotes status to
	// online in one conditional write. A sensor pinned to maintenance keeps
	// its status but still records last_seen/last_reading. The write never
	// moves last_seen backwards.
	TouchSensor(ctx context.Context, id string, at time.Time, value float64) (Sensor, error)

	// MarkOffline flips the sensor to offline only if its last_seen is
	// still unset or older than seenBefore and it is not in maintenance.
	// Returns false when the guard fails, which is how an interleaved
	// ingest wins the race against the sweep.
	MarkOffline(ctx context.Context, id string, seenBefore time.Time) (bool, error)

	// StaleSensors returns sensors matching q, excluding maintenance.
	StaleSensors(ctx context.Context, q StaleQuery) ([]Sensor, error)
}

// ReadingQuery selects a slice of the reading history.
type ReadingQuery struct {
	SensorID   string
	From, To   time.Time
	Limit      int  // 0 = no limit
	Descending bool // true for newest-first listings
}

// ReadingStore is the append-only reading history.
type ReadingStore interface {
	AppendReading(ctx context.Context, r Reading) error
	QueryReadings(ctx context.Context, q ReadingQuery) ([]Reading, error)
}

// AlertFilter narrows ListAlerts. Empty fields match everything.
type AlertFilter struct {
	Status    AlertStatus
	Severity  AlertSeverity
	SubjectID string // sensor or asset id
}

// AlertStore owns alert records and enforces the active-alert uniqueness.
type AlertStore interface {
	// InsertActiveAlert inserts atomically unless an active alert with the
	// same dedup key already exists, in which case the existing alert and
	// false are returned. At most one of two concurrent attempts for the
	// same key succeeds.
	InsertActiveAlert(ctx context.Context, a Alert) (Alert, bool, error)
	GetAlert(ctx context.Context, id string) (Alert, error)
	UpdateAlert(ctx context.Context, a Alert) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]Alert, error)
}

// Store bundles the three repositories a composed service needs.
type Store interface {
	SensorStore
	ReadingStore
	AlertStore
}

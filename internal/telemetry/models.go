// internal/telemetry/models.go
package telemetry

import "time"

// SensorStatus enumerates the health states a registered sensor can be in.
type SensorStatus string

const (
	SensorOnline      SensorStatus = "online"
	SensorOffline     SensorStatus = "offline"
	SensorMaintenance SensorStatus = "maintenance"
	SensorError       SensorStatus = "error"
)

// ReadingQuality tags how trustworthy a single measurement is.
type ReadingQuality string

const (
	QualityGood    ReadingQuality = "good"
	QualitySuspect ReadingQuality = "suspect"
	QualityBad     ReadingQuality = "bad"
)

// ReadingStatus is the threshold classification stamped on a reading.
type ReadingStatus string

const (
	ReadingNormal   ReadingStatus = "normal"
	ReadingWarning  ReadingStatus = "warning"
	ReadingCritical ReadingStatus = "critical"
)

// AlertSeverity ranks how urgent an alert is.
type AlertSeverity string

const (
	SeverityInfo      AlertSeverity = "info"
	SeverityWarning   AlertSeverity = "warning"
	SeverityCritical  AlertSeverity = "critical"
	SeverityEmergency AlertSeverity = "emergency"
)

// AlertStatus tracks an alert through its lifecycle.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertDismissed    AlertStatus = "dismissed"
)

// AlertSource identifies what produced an alert.
type AlertSource string

const (
	SourceSensor AlertSource = "sensor"
	SourceSystem AlertSource = "system"
	SourceManual AlertSource = "manual"
)

// Well-known alert type classifications. The field is free-form; these are
// the ones this core emits itself.
const (
	AlertTypeThresholdExceeded = "threshold_exceeded"
	AlertTypeSensorOffline     = "sensor_offline"
)

// Thresholds holds the configured bounds used to classify readings.
// A nil bound means no constraint on that side.
type Thresholds struct {
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	WarningMin  *float64 `json:"warningMin,omitempty"`
	WarningMax  *float64 `json:"warningMax,omitempty"`
	CriticalMin *float64 `json:"criticalMin,omitempty"`
	CriticalMax *float64 `json:"criticalMax,omitempty"`
}

// Sensor is a registered telemetry source attached to an asset.
type Sensor struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	AssetID          string        `json:"assetId"`
	Type             string        `json:"type"`
	Unit             string        `json:"unit"`
	SamplingInterval time.Duration `json:"samplingInterval"`
	Connectivity     string        `json:"connectivity,omitempty"`
	Thresholds       Thresholds    `json:"thresholds"`
	Status           SensorStatus  `json:"status"`
	LastSeen         *time.Time    `json:"lastSeen,omitempty"`
	LastReading      *float64      `json:"lastReading,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// Reading is one immutable timestamped measurement.
type Reading struct {
	ID                string            `json:"id"`
	SensorID          string            `json:"sensorId"`
	AssetID           string            `json:"assetId,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	Value             float64           `json:"value"`
	Unit              string            `json:"unit,omitempty"`
	Quality           ReadingQuality    `json:"quality"`
	Status            ReadingStatus     `json:"status"`
	ThresholdExceeded bool              `json:"thresholdExceeded"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Alert records an abnormal condition with its own lifecycle, independent
// of the sensor health state machine that triggered it.
type Alert struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	Source         AlertSource   `json:"source"`
	SensorID       string        `json:"sensorId,omitempty"`
	AssetID        string        `json:"assetId,omitempty"`
	Type           string        `json:"type"`
	Severity       AlertSeverity `json:"severity"`
	Status         AlertStatus   `json:"status"`
	Message        string        `json:"message,omitempty"`
	TriggerValue   *float64      `json:"triggerValue,omitempty"`
	ThresholdValue *float64      `json:"thresholdValue,omitempty"`
	Condition      string        `json:"condition,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	AcknowledgedAt *time.Time    `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string        `json:"acknowledgedBy,omitempty"`
	ResolvedAt     *time.Time    `json:"resolvedAt,omitempty"`
	ResolvedBy     string        `json:"resolvedBy,omitempty"`
	ResolutionNote string        `json:"resolutionNote,omitempty"`
	DismissedAt    *time.Time    `json:"dismissedAt,omitempty"`
	DismissedBy    string        `json:"dismissedBy,omitempty"`
	// WorkOrderCreated is set by an external follow-up workflow, never by
	// this core.
	WorkOrderCreated bool `json:"workOrderCreated"`
}

// DedupKey returns the identity used to suppress duplicate active alerts:
// the sensor when present, otherwise the asset.
func (a Alert) DedupKey() string {
	if a.SensorID != "" {
		return "sensor:" + a.SensorID + "|" + a.Type
	}
	return "asset:" + a.AssetID + "|" + a.Type
}

// Granularity is the bucket size for aggregation queries.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)

// Truncate snaps t (normalized to UTC) down to the bucket boundary.
func (g Granularity) Truncate(t time.Time) time.Time {
	u := t.UTC()
	switch g {
	case GranularityMinute:
		return u.Truncate(time.Minute)
	case GranularityHour:
		return u.Truncate(time.Hour)
	default:
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Valid reports whether g is one of the supported bucket sizes.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityMinute, GranularityHour, GranularityDay:
		return true
	}
	return false
}

// Bucket is one aggregated interval of the reading history.
type Bucket struct {
	Start time.Time `json:"bucketStart"`
	Count int       `json:"count"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
	Avg   float64   `json:"avg"`
}

// BatchItemError reports why one item of a batch was rejected.
type BatchItemError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a batch ingest: per-item outcomes, never an error.
type BatchResult struct {
	Processed int              `json:"processed"`
	Failed    int              `json:"failed"`
	Errors    []BatchItemError `json:"errors,omitempty"`
}

// SweepResult summarizes one offline-detection pass.
type SweepResult struct {
	Checked       int `json:"checked"`
	AlertsCreated int `json:"alertsCreated"`
	Failures      int `json:"failures"`
}

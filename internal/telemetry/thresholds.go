// internal/telemetry/thresholds.go
package telemetry

import "strconv"

// Evaluation is the outcome of classifying one value against a sensor's
// configured thresholds.
type Evaluation struct {
	Status    ReadingStatus
	Exceeded  bool
	Severity  AlertSeverity
	Bound     *float64 // the violated bound, when Exceeded
	Condition string   // e.g. "value 120.0 above critical max 100.0"
}

// EvaluateThresholds classifies value against t. Critical bounds are checked
// first and always win, even when they are narrower than the warning bounds.
// Unset bounds never trigger.
func EvaluateThresholds(value float64, t Thresholds) Evaluation {
	if bound, cond := violated(value, t.CriticalMin, t.CriticalMax, "critical"); bound != nil {
		return Evaluation{
			Status:    ReadingCritical,
			Exceeded:  true,
			Severity:  SeverityCritical,
			Bound:     bound,
			Condition: cond,
		}
	}
	warnMin, warnMax := t.WarningMin, t.WarningMax
	if warnMin == nil {
		warnMin = t.Min
	}
	if warnMax == nil {
		warnMax = t.Max
	}
	if bound, cond := violated(value, warnMin, warnMax, "warning"); bound != nil {
		return Evaluation{
			Status:    ReadingWarning,
			Exceeded:  true,
			Severity:  SeverityWarning,
			Bound:     bound,
			Condition: cond,
		}
	}
	return Evaluation{Status: ReadingNormal, Severity: SeverityInfo}
}

// violated checks the inclusive range [min, max] and returns the broken
// bound with a human-readable condition, or nil when the value is inside.
func violated(value float64, min, max *float64, level string) (*float64, string) {
	if min != nil && value < *min {
		return min, formatCondition(value, "below", level, "min", *min)
	}
	if max != nil && value > *max {
		return max, formatCondition(value, "above", level, "max", *max)
	}
	return nil, ""
}

func formatCondition(value float64, dir, level, side string, bound float64) string {
	v := strconv.FormatFloat(value, 'g', -1, 64)
	b := strconv.FormatFloat(bound, 'g', -1, 64)
	return "value " + v + " " + dir + " " + level + " " + side + " " + b
}

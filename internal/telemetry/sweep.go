// internal/telemetry/sweep.go
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStaleness is the sweep cutoff used when the caller passes zero.
const DefaultStaleness = 15 * time.Minute

// SweepOfflineSensors scans for sensors that have not reported within the
// staleness window (or never reported), marks them offline and raises a
// sensor_offline alert for each. The dedup check absorbs repeated sweeps
// over a sensor that stays offline, so the operation is idempotent and safe
// to invoke concurrently with itself and with the ingest pipeline.
// Per-sensor failures are logged and skipped; the pass always returns a
// summary.
func (s *Service) SweepOfflineSensors(ctx context.Context, staleness time.Duration) (SweepResult, error) {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	start := time.Now()
	cutoff := start.Add(-staleness).UTC()

	stale, err := s.store.StaleSensors(ctx, StaleQuery{SeenBefore: cutoff})
	if err != nil {
		return SweepResult{}, fmt.Errorf("list stale sensors: %w", err)
	}

	var res SweepResult
	for _, sensor := range stale {
		res.Checked++

		// A reading may have arrived between the listing and this write;
		// the conditional guard makes the ingest side win, and we skip the
		// alert for that sensor.
		marked, err := s.store.MarkOffline(ctx, sensor.ID, cutoff)
		if err != nil {
			res.Failures++
			s.log.Error("sweep_mark_offline_failed",
				slog.String("sensorId", sensor.ID),
				slog.Any("err", err),
			)
			continue
		}
		if !marked && sensor.Status != SensorOffline {
			continue
		}

		_, created, err := s.RaiseAlert(ctx, AlertRequest{
			Source:   SourceSystem,
			SensorID: sensor.ID,
			AssetID:  sensor.AssetID,
			Type:     AlertTypeSensorOffline,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("sensor %s has not reported since %s", sensor.Code, lastSeenLabel(sensor)),
		})
		if err != nil {
			res.Failures++
			s.log.Error("sweep_alert_failed",
				slog.String("sensorId", sensor.ID),
				slog.Any("err", err),
			)
			continue
		}
		if created {
			res.AlertsCreated++
		}
	}

	s.metrics.SweepPass(time.Since(start), res.AlertsCreated)
	s.log.Info("sweep_complete",
		slog.Int("checked", res.Checked),
		slog.Int("alertsCreated", res.AlertsCreated),
		slog.Int("failures", res.Failures),
	)
	return res, nil
}

func lastSeenLabel(sensor Sensor) string {
	if sensor.LastSeen == nil {
		return "registration"
	}
	return sensor.LastSeen.UTC().Format(time.RFC3339)
}

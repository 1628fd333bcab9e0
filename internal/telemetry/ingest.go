// internal/telemetry/ingest.go
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

// ReadingInput carries one raw reading for single-item ingestion.
type ReadingInput struct {
	SensorID  string            `json:"sensorId"`
	Value     float64           `json:"value"`
	Timestamp *time.Time        `json:"timestamp,omitempty"` // nil = now
	Quality   ReadingQuality    `json:"quality,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// BatchItem is one entry of a batch payload. Value is a pointer so a
// missing value can be told apart from zero and rejected per item.
type BatchItem struct {
	SensorID  string            `json:"sensorId"`
	Value     *float64          `json:"value"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Quality   ReadingQuality    `json:"quality,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IngestReading validates and persists one reading, touches the sensor's
// health fields, classifies the value and raises a threshold alert when
// exceeded. The persisted reading is returned with its derived status.
func (s *Service) IngestReading(ctx context.Context, in ReadingInput) (Reading, error) {
	if in.SensorID == "" {
		s.metrics.IngestOutcome("validation")
		return Reading{}, &ValidationError{Field: "sensorId", Reason: "must not be empty"}
	}
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		s.metrics.IngestOutcome("validation")
		return Reading{}, &ValidationError{Field: "value", Reason: "must be a finite number"}
	}

	sensor, err := s.store.GetSensor(ctx, in.SensorID)
	if errors.Is(err, ErrNotFound) {
		s.metrics.IngestOutcome("not_found")
		return Reading{}, &NotFoundError{Kind: "sensor", ID: in.SensorID}
	}
	if err != nil {
		s.metrics.IngestOutcome("error")
		return Reading{}, fmt.Errorf("load sensor: %w", err)
	}

	ts := time.Now().UTC()
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}
	quality := in.Quality
	if quality == "" {
		quality = QualityGood
	}

	eval := EvaluateThresholds(in.Value, sensor.Thresholds)
	reading := Reading{
		ID:                uuid.NewString(),
		SensorID:          sensor.ID,
		AssetID:           sensor.AssetID,
		Timestamp:         ts,
		Value:             in.Value,
		Unit:              sensor.Unit,
		Quality:           quality,
		Status:            eval.Status,
		ThresholdExceeded: eval.Exceeded,
		Metadata:          in.Metadata,
	}

	if err := s.store.AppendReading(ctx, reading); err != nil {
		s.metrics.IngestOutcome("error")
		return Reading{}, fmt.Errorf("persist reading: %w", err)
	}
	if _, err := s.store.TouchSensor(ctx, sensor.ID, ts, in.Value); err != nil {
		s.metrics.IngestOutcome("error")
		return Reading{}, fmt.Errorf("touch sensor: %w", err)
	}

	if eval.Exceeded {
		req := AlertRequest{
			Source:         SourceSensor,
			SensorID:       sensor.ID,
			AssetID:        sensor.AssetID,
			Type:           AlertTypeThresholdExceeded,
			Severity:       eval.Severity,
			Message:        fmt.Sprintf("sensor %s: %s", sensor.Code, eval.Condition),
			TriggerValue:   &reading.Value,
			ThresholdValue: eval.Bound,
			Condition:      eval.Condition,
		}
		if _, _, err := s.RaiseAlert(ctx, req); err != nil {
			// The reading is already persisted; an alert failure is logged,
			// not surfaced.
			s.log.Error("threshold_alert_failed",
				slog.String("sensorId", sensor.ID),
				slog.Any("err", err),
			)
		}
	}

	s.metrics.IngestOutcome("ok")
	s.log.Debug("reading_ingested",
		slog.String("sensorId", sensor.ID),
		slog.Float64("value", in.Value),
		slog.String("status", string(eval.Status)),
	)
	return reading, nil
}

// IngestBatch processes items independently via the single-reading path.
// One malformed item never aborts the batch; failures are collected with
// their index and reason.
func (s *Service) IngestBatch(ctx context.Context, items []BatchItem) BatchResult {
	var res BatchResult
	for i, item := range items {
		reason := ""
		switch {
		case item.SensorID == "":
			reason = "missing sensorId"
		case item.Value == nil:
			reason = "missing value"
		}
		if reason == "" {
			_, err := s.IngestReading(ctx, ReadingInput{
				SensorID:  item.SensorID,
				Value:     *item.Value,
				Timestamp: item.Timestamp,
				Quality:   item.Quality,
				Metadata:  item.Metadata,
			})
			if err != nil {
				reason = err.Error()
			}
		}
		if reason == "" {
			res.Processed++
			continue
		}
		res.Failed++
		res.Errors = append(res.Errors, BatchItemError{Index: i, Reason: reason})
		s.log.Warn("batch_item_rejected", slog.Int("index", i), slog.String("reason", reason))
	}
	return res
}

// GetReadings returns readings for a sensor in [from, to], newest first.
func (s *Service) GetReadings(ctx context.Context, sensorID string, from, to time.Time, limit int) ([]Reading, error) {
	if _, err := s.GetSensor(ctx, sensorID); err != nil {
		return nil, err
	}
	return s.store.QueryReadings(ctx, ReadingQuery{
		SensorID:   sensorID,
		From:       from.UTC(),
		To:         to.UTC(),
		Limit:      limit,
		Descending: true,
	})
}

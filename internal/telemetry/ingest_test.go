// internal/telemetry/ingest_test.go
package telemetry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/store"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

func fp(v float64) *float64 { return &v }

// recordingNotifier captures every alert handed to the dispatcher.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []telemetry.Alert
}

func (n *recordingNotifier) NotifyAlert(_ context.Context, a telemetry.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newTestService(t *testing.T) (*telemetry.Service, *store.Memory, *recordingNotifier) {
	t.Helper()
	mem := store.NewMemory()
	notifier := &recordingNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return telemetry.NewService(mem, notifier, nil, logger), mem, notifier
}

func registerSensor(t *testing.T, svc *telemetry.Service, def telemetry.SensorDefinition) telemetry.Sensor {
	t.Helper()
	if def.Code == "" {
		def.Code = "PT-001"
	}
	if def.Type == "" {
		def.Type = "pressure"
	}
	sensor, err := svc.RegisterSensor(context.Background(), def)
	if err != nil {
		t.Fatalf("register sensor: %v", err)
	}
	return sensor
}

func TestIngestReadingTouchesSensor(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	reading, err := svc.IngestReading(context.Background(), telemetry.ReadingInput{
		SensorID:  sensor.ID,
		Value:     42.5,
		Timestamp: &ts,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if reading.Status != telemetry.ReadingNormal || reading.ThresholdExceeded {
		t.Fatalf("unexpected classification: %+v", reading)
	}

	got, err := svc.GetSensor(context.Background(), sensor.ID)
	if err != nil {
		t.Fatalf("get sensor: %v", err)
	}
	if got.Status != telemetry.SensorOnline {
		t.Fatalf("status = %s, want online", got.Status)
	}
	if got.LastSeen == nil || got.LastSeen.Before(reading.Timestamp) {
		t.Fatalf("last_seen = %v, want >= %v", got.LastSeen, reading.Timestamp)
	}
	if got.LastReading == nil || *got.LastReading != 42.5 {
		t.Fatalf("last_reading = %v, want 42.5", got.LastReading)
	}
}

func TestIngestReadingMaintenancePinned(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{Maintenance: true})

	if _, err := svc.IngestReading(context.Background(), telemetry.ReadingInput{
		SensorID: sensor.ID,
		Value:    1,
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	got, err := svc.GetSensor(context.Background(), sensor.ID)
	if err != nil {
		t.Fatalf("get sensor: %v", err)
	}
	if got.Status != telemetry.SensorMaintenance {
		t.Fatalf("status = %s, maintenance must not be overwritten", got.Status)
	}
	if got.LastSeen == nil {
		t.Fatalf("last_seen should still be recorded in maintenance")
	}
}

func TestIngestReadingUnknownSensor(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	_, err := svc.IngestReading(context.Background(), telemetry.ReadingInput{SensorID: "nope", Value: 1})
	var nf *telemetry.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestIngestReadingValidation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	_, err := svc.IngestReading(context.Background(), telemetry.ReadingInput{Value: 1})
	var ve *telemetry.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestIngestReadingRaisesThresholdAlert(t *testing.T) {
	t.Parallel()
	svc, _, notifier := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{
		Thresholds: telemetry.Thresholds{WarningMax: fp(90), CriticalMax: fp(100)},
	})

	reading, err := svc.IngestReading(context.Background(), telemetry.ReadingInput{
		SensorID: sensor.ID,
		Value:    120,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if reading.Status != telemetry.ReadingCritical || !reading.ThresholdExceeded {
		t.Fatalf("unexpected classification: %+v", reading)
	}

	alerts, err := svc.ListAlerts(context.Background(), telemetry.AlertFilter{SubjectID: sensor.ID})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Type != telemetry.AlertTypeThresholdExceeded || a.Severity != telemetry.SeverityCritical {
		t.Fatalf("unexpected alert: %+v", a)
	}
	if a.TriggerValue == nil || *a.TriggerValue != 120 {
		t.Fatalf("trigger value = %v, want 120", a.TriggerValue)
	}
	if a.ThresholdValue == nil || *a.ThresholdValue != 100 {
		t.Fatalf("threshold value = %v, want 100", a.ThresholdValue)
	}
	if notifier.count() != 1 {
		t.Fatalf("notifier saw %d alerts, want 1", notifier.count())
	}
}

func TestIngestBatchPartialFailure(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	res := svc.IngestBatch(context.Background(), []telemetry.BatchItem{
		{SensorID: sensor.ID, Value: fp(5)},
		{SensorID: sensor.ID},
		{Value: fp(7)},
	})
	if res.Processed != 1 || res.Failed != 2 {
		t.Fatalf("processed=%d failed=%d, want 1/2", res.Processed, res.Failed)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 item errors, got %d", len(res.Errors))
	}
	if res.Errors[0].Index != 1 || res.Errors[1].Index != 2 {
		t.Fatalf("unexpected error indexes: %+v", res.Errors)
	}
}

func TestIngestBatchUnknownSensorIsolated(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	res := svc.IngestBatch(context.Background(), []telemetry.BatchItem{
		{SensorID: "ghost", Value: fp(1)},
		{SensorID: sensor.ID, Value: fp(2)},
	})
	if res.Processed != 1 || res.Failed != 1 {
		t.Fatalf("processed=%d failed=%d, want 1/1", res.Processed, res.Failed)
	}
	if res.Errors[0].Index != 0 {
		t.Fatalf("unexpected error index: %+v", res.Errors)
	}
}

func TestGetReadingsDescending(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		if _, err := svc.IngestReading(context.Background(), telemetry.ReadingInput{
			SensorID: sensor.ID, Value: float64(i), Timestamp: &ts,
		}); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	readings, err := svc.GetReadings(context.Background(), sensor.ID, base, base.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("get readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if !readings[0].Timestamp.After(readings[1].Timestamp) {
		t.Fatalf("readings not descending: %v then %v", readings[0].Timestamp, readings[1].Timestamp)
	}
	if readings[0].Value != 2 {
		t.Fatalf("newest value = %v, want 2", readings[0].Value)
	}
}

// internal/telemetry/alerts_test.go
package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

func TestRaiseAlertDedup(t *testing.T) {
	t.Parallel()
	svc, _, notifier := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	req := telemetry.AlertRequest{
		Source:   telemetry.SourceSensor,
		SensorID: sensor.ID,
		Type:     telemetry.AlertTypeThresholdExceeded,
		Severity: telemetry.SeverityWarning,
	}
	first, created, err := svc.RaiseAlert(context.Background(), req)
	if err != nil || !created {
		t.Fatalf("first raise: created=%v err=%v", created, err)
	}
	second, created, err := svc.RaiseAlert(context.Background(), req)
	if err != nil {
		t.Fatalf("second raise: %v", err)
	}
	if created {
		t.Fatalf("second raise must be suppressed")
	}
	if second.ID != first.ID {
		t.Fatalf("suppressed raise returned %s, want existing %s", second.ID, first.ID)
	}

	alerts, err := svc.ListAlerts(context.Background(), telemetry.AlertFilter{SubjectID: sensor.ID})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("storage holds %d alerts, want exactly 1", len(alerts))
	}
	if notifier.count() != 1 {
		t.Fatalf("notifier saw %d alerts, want 1 (no re-notify on suppress)", notifier.count())
	}
}

func TestRaiseAlertDifferentTypesCoexist(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	for _, typ := range []string{telemetry.AlertTypeThresholdExceeded, telemetry.AlertTypeSensorOffline} {
		if _, created, err := svc.RaiseAlert(context.Background(), telemetry.AlertRequest{
			SensorID: sensor.ID,
			Type:     typ,
			Severity: telemetry.SeverityWarning,
		}); err != nil || !created {
			t.Fatalf("raise %s: created=%v err=%v", typ, created, err)
		}
	}
	alerts, err := svc.ListAlerts(context.Background(), telemetry.AlertFilter{SubjectID: sensor.ID})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts for distinct types, got %d", len(alerts))
	}
}

func TestRaiseAlertAfterResolveCreatesNew(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	req := telemetry.AlertRequest{
		SensorID: sensor.ID,
		Type:     telemetry.AlertTypeThresholdExceeded,
		Severity: telemetry.SeverityWarning,
	}
	first, _, err := svc.RaiseAlert(context.Background(), req)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if _, err := svc.ResolveAlert(context.Background(), first.ID, "op-1", "fixed"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, created, err := svc.RaiseAlert(context.Background(), req)
	if err != nil || !created {
		t.Fatalf("re-raise after resolve: created=%v err=%v", created, err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a fresh alert after the previous one resolved")
	}
}

func TestAlertTransitions(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{})

	raise := func(typ string) telemetry.Alert {
		a, _, err := svc.RaiseAlert(context.Background(), telemetry.AlertRequest{
			SensorID: sensor.ID, Type: typ, Severity: telemetry.SeverityWarning,
		})
		if err != nil {
			t.Fatalf("raise %s: %v", typ, err)
		}
		return a
	}

	ctx := context.Background()

	// active -> acknowledged -> resolved
	a := raise("flow-a")
	acked, err := svc.AcknowledgeAlert(ctx, a.ID, "op-1")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.Status != telemetry.AlertAcknowledged || acked.AcknowledgedBy != "op-1" || acked.AcknowledgedAt == nil {
		t.Fatalf("unexpected acknowledged alert: %+v", acked)
	}
	resolved, err := svc.ResolveAlert(ctx, a.ID, "op-2", "replaced valve")
	if err != nil {
		t.Fatalf("resolve from acknowledged: %v", err)
	}
	if resolved.Status != telemetry.AlertResolved || resolved.ResolutionNote != "replaced valve" {
		t.Fatalf("unexpected resolved alert: %+v", resolved)
	}

	// resolved is terminal
	var tr *telemetry.InvalidTransitionError
	if _, err := svc.AcknowledgeAlert(ctx, a.ID, "op-3"); !errors.As(err, &tr) {
		t.Fatalf("acknowledge after resolve: err = %v, want InvalidTransitionError", err)
	}
	if _, err := svc.DismissAlert(ctx, a.ID, "op-3"); !errors.As(err, &tr) {
		t.Fatalf("dismiss after resolve: err = %v, want InvalidTransitionError", err)
	}

	// active -> dismissed, then terminal
	b := raise("flow-b")
	dismissed, err := svc.DismissAlert(ctx, b.ID, "op-1")
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if dismissed.Status != telemetry.AlertDismissed {
		t.Fatalf("status = %s, want dismissed", dismissed.Status)
	}
	if _, err := svc.ResolveAlert(ctx, b.ID, "op-1", ""); !errors.As(err, &tr) {
		t.Fatalf("resolve after dismiss: err = %v, want InvalidTransitionError", err)
	}

	// acknowledged cannot be dismissed
	c := raise("flow-c")
	if _, err := svc.AcknowledgeAlert(ctx, c.ID, "op-1"); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, err := svc.DismissAlert(ctx, c.ID, "op-1"); !errors.As(err, &tr) {
		t.Fatalf("dismiss from acknowledged: err = %v, want InvalidTransitionError", err)
	}
}

func TestTransitionUnknownAlert(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	var nf *telemetry.NotFoundError
	if _, err := svc.AcknowledgeAlert(context.Background(), "ghost", "op-1"); !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestResolveAlertKeepsSensorStatus(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	sensor := registerSensor(t, svc, telemetry.SensorDefinition{
		Thresholds: telemetry.Thresholds{WarningMax: fp(10)},
	})
	if _, err := svc.IngestReading(context.Background(), telemetry.ReadingInput{
		SensorID: sensor.ID, Value: 50,
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	alerts, _ := svc.ListAlerts(context.Background(), telemetry.AlertFilter{SubjectID: sensor.ID})
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if _, err := svc.ResolveAlert(context.Background(), alerts[0].ID, "op-1", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := svc.GetSensor(context.Background(), sensor.ID)
	if got.Status != telemetry.SensorOnline {
		t.Fatalf("resolving an alert must not touch sensor status, got %s", got.Status)
	}
}

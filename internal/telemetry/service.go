// internal/telemetry/service.go

// Package telemetry implements the field-sensor core: sensor registry,
// reading ingest, threshold evaluation, alert lifecycle with dedup, the
// offline sweep, and time-bucketed aggregation.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/observability"
)

// Notifier receives completed alerts for downstream fan-out. Delivery is
// opaque to this core; a failed notification never fails the operation that
// created the alert.
type Notifier interface {
	NotifyAlert(ctx context.Context, a Alert) error
}

// NopNotifier drops every notification. Used when no dispatcher is wired.
type NopNotifier struct{}

func (NopNotifier) NotifyAlert(context.Context, Alert) error { return nil }

// Service is the transport-agnostic entry point for every operation the
// core exposes. Stores, notifier and metrics are injected at construction;
// their lifecycle belongs to the composing application.
type Service struct {
	store    Store
	notifier Notifier
	metrics  *observability.Metrics
	log      *slog.Logger
}

// NewService wires a Service. notifier may be nil (notifications dropped)
// and metrics may be nil (instruments skipped).
func NewService(st Store, notifier Notifier, metrics *observability.Metrics, log *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		metrics:  metrics,
		log:      log.With(slog.String("component", "telemetry")),
	}
}

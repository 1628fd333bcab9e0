// internal/telemetry/alerts.go
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AlertRequest describes the condition a caller wants an alert raised for.
type AlertRequest struct {
	Source         AlertSource   `json:"source"`
	SensorID       string        `json:"sensorId,omitempty"`
	AssetID        string        `json:"assetId,omitempty"`
	Type           string        `json:"type"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message,omitempty"`
	TriggerValue   *float64      `json:"triggerValue,omitempty"`
	ThresholdValue *float64      `json:"thresholdValue,omitempty"`
	Condition      string        `json:"condition,omitempty"`
}

// RaiseAlert creates a new active alert unless one with the same dedup key
// (sensor or asset + alert type) is already active, in which case the
// existing alert is returned and created is false. This is the primary
// defense against alert storms from repeated exceedances.
func (s *Service) RaiseAlert(ctx context.Context, req AlertRequest) (Alert, bool, error) {
	if req.SensorID == "" && req.AssetID == "" {
		return Alert{}, false, &ValidationError{Field: "sensorId", Reason: "sensor or asset reference required"}
	}
	if strings.TrimSpace(req.Type) == "" {
		return Alert{}, false, &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	source := req.Source
	if source == "" {
		source = SourceSystem
	}

	alert := Alert{
		ID:             uuid.NewString(),
		Code:           newAlertCode(),
		Source:         source,
		SensorID:       req.SensorID,
		AssetID:        req.AssetID,
		Type:           req.Type,
		Severity:       req.Severity,
		Status:         AlertActive,
		Message:        req.Message,
		TriggerValue:   req.TriggerValue,
		ThresholdValue: req.ThresholdValue,
		Condition:      req.Condition,
		CreatedAt:      time.Now().UTC(),
	}

	stored, created, err := s.store.InsertActiveAlert(ctx, alert)
	if err != nil {
		return Alert{}, false, fmt.Errorf("insert alert: %w", err)
	}
	if !created {
		s.metrics.AlertSuppressed()
		s.log.Debug("alert_suppressed",
			slog.String("type", req.Type),
			slog.String("existing", stored.ID),
		)
		return stored, false, nil
	}

	s.metrics.AlertRaised(alert.Type)
	s.log.Info("alert_raised",
		slog.String("alertId", stored.ID),
		slog.String("code", stored.Code),
		slog.String("type", stored.Type),
		slog.String("severity", string(stored.Severity)),
	)
	if err := s.notifier.NotifyAlert(ctx, stored); err != nil {
		s.log.Error("alert_notify_failed", slog.String("alertId", stored.ID), slog.Any("err", err))
	}
	return stored, true, nil
}

// AcknowledgeAlert moves an active alert to acknowledged.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID, actor string) (Alert, error) {
	return s.transition(ctx, alertID, AlertAcknowledged, func(a *Alert) error {
		if a.Status != AlertActive {
			return &InvalidTransitionError{AlertID: a.ID, From: a.Status, To: AlertAcknowledged}
		}
		now := time.Now().UTC()
		a.Status = AlertAcknowledged
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = actor
		return nil
	})
}

// ResolveAlert closes an alert from active or acknowledged.
func (s *Service) ResolveAlert(ctx context.Context, alertID, actor, notes string) (Alert, error) {
	return s.transition(ctx, alertID, AlertResolved, func(a *Alert) error {
		if a.Status != AlertActive && a.Status != AlertAcknowledged {
			return &InvalidTransitionError{AlertID: a.ID, From: a.Status, To: AlertResolved}
		}
		now := time.Now().UTC()
		a.Status = AlertResolved
		a.ResolvedAt = &now
		a.ResolvedBy = actor
		a.ResolutionNote = notes
		return nil
	})
}

// DismissAlert discards an alert; valid only while it is still active.
func (s *Service) DismissAlert(ctx context.Context, alertID, actor string) (Alert, error) {
	return s.transition(ctx, alertID, AlertDismissed, func(a *Alert) error {
		if a.Status != AlertActive {
			return &InvalidTransitionError{AlertID: a.ID, From: a.Status, To: AlertDismissed}
		}
		now := time.Now().UTC()
		a.Status = AlertDismissed
		a.DismissedAt = &now
		a.DismissedBy = actor
		return nil
	})
}

// transition loads, mutates and persists one alert. Resolving or dismissing
// an alert has no effect on the originating sensor's health status; the two
// state machines are linked only by the trigger event.
func (s *Service) transition(ctx context.Context, alertID string, to AlertStatus, apply func(*Alert) error) (Alert, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if errors.Is(err, ErrNotFound) {
		return Alert{}, &NotFoundError{Kind: "alert", ID: alertID}
	}
	if err != nil {
		return Alert{}, fmt.Errorf("load alert: %w", err)
	}
	if err := apply(&alert); err != nil {
		return Alert{}, err
	}
	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return Alert{}, fmt.Errorf("update alert: %w", err)
	}
	s.metrics.AlertTransition(string(to))
	s.log.Info("alert_transition",
		slog.String("alertId", alert.ID),
		slog.String("to", string(to)),
	)
	return alert, nil
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *Service) ListAlerts(ctx context.Context, f AlertFilter) ([]Alert, error) {
	return s.store.ListAlerts(ctx, f)
}

// newAlertCode generates the short operator-facing alert code.
func newAlertCode() string {
	id := uuid.NewString()
	return "ALT-" + strings.ToUpper(id[:8])
}

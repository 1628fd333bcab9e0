// internal/telemetry/registry.go
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

// SensorDefinition is the caller-supplied part of a sensor registration.
type SensorDefinition struct {
	Code             string        `json:"code"`
	AssetID          string        `json:"assetId"`
	Type             string        `json:"type"`
	Unit             string        `json:"unit"`
	SamplingInterval time.Duration `json:"samplingInterval"`
	Connectivity     string        `json:"connectivity"`
	Thresholds       Thresholds    `json:"thresholds"`
	Maintenance      bool          `json:"maintenance"`
}

// RegisterSensor creates a sensor record. A freshly registered sensor is
// offline until its first reading is accepted, unless registered directly
// in maintenance.
func (s *Service) RegisterSensor(ctx context.Context, def SensorDefinition) (Sensor, error) {
	if strings.TrimSpace(def.Code) == "" {
		return Sensor{}, &ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if strings.TrimSpace(def.Type) == "" {
		return Sensor{}, &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	status := SensorOffline
	if def.Maintenance {
		status = SensorMaintenance
	}
	sensor := Sensor{
		ID:               uuid.NewString(),
		Code:             strings.TrimSpace(def.Code),
		AssetID:          def.AssetID,
		Type:             def.Type,
		Unit:             def.Unit,
		SamplingInterval: def.SamplingInterval,
		Connectivity:     def.Connectivity,
		Thresholds:       def.Thresholds,
		Status:           status,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.InsertSensor(ctx, sensor); err != nil {
		return Sensor{}, fmt.Errorf("register sensor: %w", err)
	}
	s.log.Info("sensor_registered",
		slog.String("sensorId", sensor.ID),
		slog.String("code", sensor.Code),
		slog.String("status", string(sensor.Status)),
	)
	return sensor, nil
}

// GetSensor looks up one sensor by id.
func (s *Service) GetSensor(ctx context.Context, id string) (Sensor, error) {
	sensor, err := s.store.GetSensor(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Sensor{}, &NotFoundError{Kind: "sensor", ID: id}
	}
	if err != nil {
		return Sensor{}, fmt.Errorf("get sensor: %w", err)
	}
	return sensor, nil
}

// ListSensors returns registered sensors, optionally filtered by status.
func (s *Service) ListSensors(ctx context.Context, f SensorFilter) ([]Sensor, error) {
	return s.store.ListSensors(ctx, f)
}

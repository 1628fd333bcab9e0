// internal/mqttsource/source.go

// Package mqttsource bridges field devices publishing over MQTT into the
// ingest pipeline. Malformed payloads are logged and dropped; the broker
// never sees an error from us.
package mqttsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

const messageTimeout = 5 * time.Second

// Config holds the MQTT connection settings.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
}

// ingester is the slice of the telemetry service the bridge needs.
type ingester interface {
	IngestReading(ctx context.Context, in telemetry.ReadingInput) (telemetry.Reading, error)
}

// Source subscribes to the readings topic and feeds each decoded payload
// through the same path as HTTP ingestion.
type Source struct {
	cfg    Config
	log    *slog.Logger
	svc    ingester
	client mqtt.Client
}

// wirePayload is the device-side JSON shape. Timestamp is optional RFC3339.
type wirePayload struct {
	SensorID  string            `json:"sensor_id"`
	Value     *float64          `json:"value"`
	Timestamp string            `json:"timestamp,omitempty"`
	Quality   string            `json:"quality,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New builds the bridge; Connect must be called before readings flow.
func New(cfg Config, svc ingester, log *slog.Logger) (*Source, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker must not be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic must not be empty")
	}
	if svc == nil {
		return nil, errors.New("mqtt source requires an ingester")
	}
	s := &Source{cfg: cfg, log: log.With(slog.String("component", "mqtt_source")), svc: svc}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(s.handleMessage)
	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Connect dials the broker and subscribes to the readings topic.
func (s *Source) Connect() error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	if token := s.client.Subscribe(s.cfg.Topic, 0, s.handleMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscribe: %w", token.Error())
	}
	s.log.Info("mqtt_source_connected", slog.String("broker", s.cfg.Broker), slog.String("topic", s.cfg.Topic))
	return nil
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (s *Source) Close() {
	s.client.Disconnect(250)
}

func (s *Source) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var p wirePayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		s.log.Warn("mqtt_payload_invalid", slog.String("topic", msg.Topic()), slog.Any("err", err))
		return
	}
	if p.SensorID == "" || p.Value == nil {
		s.log.Warn("mqtt_payload_incomplete", slog.String("topic", msg.Topic()))
		return
	}
	in := telemetry.ReadingInput{
		SensorID: p.SensorID,
		Value:    *p.Value,
		Quality:  telemetry.ReadingQuality(p.Quality),
		Metadata: p.Metadata,
	}
	if p.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			s.log.Warn("mqtt_timestamp_invalid", slog.String("sensorId", p.SensorID), slog.Any("err", err))
			return
		}
		in.Timestamp = &ts
	}

	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()
	if _, err := s.svc.IngestReading(ctx, in); err != nil {
		s.log.Error("mqtt_ingest_failed", slog.String("sensorId", p.SensorID), slog.Any("err", err))
	}
}

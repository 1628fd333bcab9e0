// internal/config/config.go
package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config carries runtime settings (mostly via env).
type Config struct {
	ListenAddress string
	DataDir       string
	LogLevel      string

	// Sweep loop.
	SweepInterval  time.Duration
	SweepStaleness time.Duration

	// Storage. Empty PostgresURL selects the in-memory store.
	PostgresURL string
	RedisAddr   string

	// Alert notifications over Kafka. Disabled when no brokers are set.
	KafkaBrokers []string
	AlertTopic   string

	// MQTT ingest bridge. Disabled when no broker is set.
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string
}

// Load reads env vars and applies defaults.
func Load() Config {
	return Config{
		ListenAddress:  envStr("LISTEN_ADDRESS", ":8087"),
		DataDir:        envStr("DATA_DIR", "./data"),
		LogLevel:       envStr("LOG_LEVEL", "INFO"),
		SweepInterval:  envDur("SWEEP_INTERVAL", 5*time.Minute),
		SweepStaleness: envDur("SWEEP_STALENESS", 15*time.Minute),
		PostgresURL:    envStr("POSTGRES_URL", ""),
		RedisAddr:      envStr("REDIS_ADDR", ""),
		KafkaBrokers:   envList("KAFKA_BROKERS", nil),
		AlertTopic:     envStr("ALERT_TOPIC", "telemetry.alerts"),
		MQTTBroker:     envStr("MQTT_BROKER", ""),
		MQTTClientID:   envStr("MQTT_CLIENT_ID", "telemetryd"),
		MQTTTopic:      envStr("MQTT_TOPIC", "sensors/+/readings"),
	}
}

// Validate ensures the configuration is internally consistent before use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.SweepStaleness <= 0 {
		return errors.New("sweep staleness must be positive")
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.AlertTopic) == "" {
		return errors.New("alert topic is required when Kafka brokers are set")
	}
	if c.MQTTBroker != "" && strings.TrimSpace(c.MQTTTopic) == "" {
		return errors.New("mqtt topic is required when the broker is set")
	}
	return nil
}

func envStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

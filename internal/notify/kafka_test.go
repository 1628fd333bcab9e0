// internal/notify/kafka_test.go
package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

type recordingWriter struct {
	ch chan kafka.Message
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{ch: make(chan kafka.Message, 8)}
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.ch <- msg
	}
	return nil
}

func (r *recordingWriter) Close() error {
	close(r.ch)
	return nil
}

func (r *recordingWriter) await(t *testing.T) kafka.Message {
	t.Helper()
	select {
	case msg := <-r.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for publish")
	}
	return kafka.Message{}
}

func newTestPublisher(t *testing.T) (*KafkaPublisher, *recordingWriter) {
	t.Helper()
	writer := newRecordingWriter()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{Brokers: []string{"kafka:9092"}, Topic: "telemetry.alerts"}
	pub, err := newPublisherWithWriter(cfg, logger, nil, writer, writer)
	if err != nil {
		t.Fatalf("newPublisherWithWriter error: %v", err)
	}
	return pub, writer
}

func TestPublisherDeliversAlert(t *testing.T) {
	t.Parallel()
	pub, writer := newTestPublisher(t)
	if err := pub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	alert := telemetry.Alert{
		ID:       "a1",
		Code:     "ALT-1234ABCD",
		SensorID: "s1",
		Type:     telemetry.AlertTypeThresholdExceeded,
		Severity: telemetry.SeverityCritical,
		Status:   telemetry.AlertActive,
	}
	if err := pub.NotifyAlert(context.Background(), alert); err != nil {
		t.Fatalf("notify: %v", err)
	}

	msg := writer.await(t)
	if string(msg.Key) != alert.DedupKey() {
		t.Fatalf("key = %q, want dedup key %q", msg.Key, alert.DedupKey())
	}
	var decoded telemetry.Alert
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.ID != alert.ID || decoded.Severity != alert.Severity {
		t.Fatalf("decoded alert = %+v, want %+v", decoded, alert)
	}

	if err := pub.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestPublisherRejectsBeforeStart(t *testing.T) {
	t.Parallel()
	pub, _ := newTestPublisher(t)
	if err := pub.NotifyAlert(context.Background(), telemetry.Alert{ID: "a1"}); err == nil {
		t.Fatalf("expected error before Start")
	}
}

func TestPublisherDrainsQueueOnStop(t *testing.T) {
	t.Parallel()
	pub, writer := newTestPublisher(t)
	if err := pub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := pub.NotifyAlert(context.Background(), telemetry.Alert{ID: "a1", SensorID: "s1", Type: "x"}); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}
	if err := pub.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got := 0
	for range writer.ch {
		got++
	}
	if got != 3 {
		t.Fatalf("delivered %d messages before close, want 3", got)
	}
}

// internal/notify/kafka.go

// Package notify carries completed alerts to downstream channels. The core
// only produces the alert; delivery mechanics stay behind the
// telemetry.Notifier contract.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/observability"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

const publisherQueueSize = 256

var (
	errPublisherNilLogger  = errors.New("publisher requires a logger")
	errPublisherNilWriter  = errors.New("publisher requires a writer")
	errPublisherNotStarted = errors.New("alert publisher not started")
	errPublisherStopped    = errors.New("alert publisher stopped")
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaWriteCloser interface {
	Close() error
}

// Config holds the knobs for publishing alerts to Kafka.
type Config struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher queues alerts and delivers them asynchronously to the
// configured topic, keyed by the alert's dedup key so all events for one
// condition land on the same partition.
type KafkaPublisher struct {
	cfg       Config
	log       *slog.Logger
	metrics   *observability.Metrics
	writer    kafkaMessageWriter
	closer    kafkaWriteCloser
	queue     chan telemetry.Alert
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// NewKafkaPublisher constructs a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config, log *slog.Logger, metrics *observability.Metrics) (*KafkaPublisher, error) {
	if log == nil {
		return nil, errPublisherNilLogger
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("alert topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		Balancer:               &kafka.Hash{},
	}
	return newPublisherWithWriter(cfg, log, metrics, writer, writer)
}

// newPublisherWithWriter wires the provided writer into the publisher. It
// is used in tests.
func newPublisherWithWriter(cfg Config, log *slog.Logger, metrics *observability.Metrics, writer kafkaMessageWriter, closer kafkaWriteCloser) (*KafkaPublisher, error) {
	if log == nil {
		return nil, errPublisherNilLogger
	}
	if writer == nil {
		return nil, errPublisherNilWriter
	}
	return &KafkaPublisher{
		cfg:     cfg,
		log:     log.With(slog.String("component", "alert_publisher")),
		metrics: metrics,
		writer:  writer,
		closer:  closer,
		queue:   make(chan telemetry.Alert, publisherQueueSize),
	}, nil
}

// Start launches the background delivery loop.
func (p *KafkaPublisher) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	p.startOnce.Do(func() {
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.started.Store(true)
		p.wg.Add(1)
		go p.run()
		p.log.Info("alert_publisher_started", slog.String("topic", p.cfg.Topic))
	})
	if !p.started.Load() {
		return errPublisherNotStarted
	}
	return nil
}

// Stop requests shutdown and waits for queued alerts to drain.
func (p *KafkaPublisher) Stop(ctx context.Context) error {
	var stopErr error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if p.closer != nil {
			if err := p.closer.Close(); err != nil {
				p.log.Error("alert_publisher_close_err", slog.Any("err", err))
			}
		}
		p.metrics.SetNotifyQueueDepth(0)
		p.log.Info("alert_publisher_stopped")
	})
	return stopErr
}

// NotifyAlert queues one alert for asynchronous delivery. It implements
// telemetry.Notifier.
func (p *KafkaPublisher) NotifyAlert(ctx context.Context, a telemetry.Alert) error {
	if !p.started.Load() {
		return errPublisherNotStarted
	}
	select {
	case p.queue <- a:
		p.metrics.SetNotifyQueueDepth(len(p.queue))
		return nil
	case <-ctx.Done():
		p.metrics.NotifyResult("fail")
		return ctx.Err()
	case <-p.runCtx.Done():
		p.metrics.NotifyResult("fail")
		return errPublisherStopped
	}
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			p.started.Store(false)
			p.log.Info("alert_publisher_loop_exit")
			return
		case a := <-p.queue:
			p.metrics.SetNotifyQueueDepth(len(p.queue))
			p.deliver(a)
		}
	}
}

func (p *KafkaPublisher) drain() {
	for {
		select {
		case a := <-p.queue:
			p.metrics.SetNotifyQueueDepth(len(p.queue))
			p.deliver(a)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) deliver(a telemetry.Alert) {
	value, err := json.Marshal(a)
	if err != nil {
		p.metrics.NotifyResult("fail")
		p.log.Error("alert_publish_encode_err", slog.Any("err", err), slog.String("alertId", a.ID))
		return
	}
	msg := kafka.Message{Key: []byte(a.DedupKey()), Value: value}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.metrics.NotifyResult("fail")
		p.log.Error("alert_publish_err", slog.Any("err", err), slog.String("alertId", a.ID))
		return
	}
	p.metrics.NotifyResult("ok")
	p.log.Info("alert_published", slog.String("alertId", a.ID), slog.String("type", a.Type))
}

// cmd/telemetryd/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/api"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/config"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/logging"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/mqttsource"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/notify"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/observability"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/store"
	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", slog.Any("err", err))
		os.Exit(1)
	}

	logger, cleanup, err := logging.New(cfg.DataDir, cfg.LogLevel)
	if err != nil {
		slog.Error("logging_init_failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("telemetryd_exit", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, stopNotifier, err := openNotifier(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer stopNotifier()

	svc := telemetry.NewService(st, notifier, metrics, logger)

	if cfg.MQTTBroker != "" {
		source, err := mqttsource.New(mqttsource.Config{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		}, svc, logger)
		if err != nil {
			return err
		}
		if err := source.Connect(); err != nil {
			return err
		}
		defer source.Close()
	}

	go sweepLoop(ctx, svc, cfg, logger)

	router := api.NewRouter(&api.Handlers{Log: logger, Service: svc}, metrics)
	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: handlers.LoggingHandler(os.Stdout, router),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", slog.String("addr", cfg.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_err", slog.Any("err", err))
	}
	return nil
}

// openStore picks the Postgres store when configured, memory otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (telemetry.Store, func(), error) {
	if cfg.PostgresURL == "" {
		logger.Info("store_selected", slog.String("backend", "memory"))
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(ctx, cfg.PostgresURL, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("store_selected",
		slog.String("backend", "postgres"),
		slog.Bool("redisCache", cfg.RedisAddr != ""),
	)
	return pg, pg.Close, nil
}

// openNotifier starts the Kafka publisher when brokers are configured.
func openNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (telemetry.Notifier, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("alert_notifier_disabled")
		return telemetry.NopNotifier{}, func() {}, nil
	}
	pub, err := notify.NewKafkaPublisher(notify.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.AlertTopic,
	}, logger, metrics)
	if err != nil {
		return nil, nil, err
	}
	if err := pub.Start(ctx); err != nil {
		return nil, nil, err
	}
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = pub.Stop(stopCtx)
	}
	return pub, stop, nil
}

// sweepLoop drives the offline detection on a fixed interval. The sweep is
// re-entrant, so an overlap with a slow previous pass is harmless.
func sweepLoop(ctx context.Context, svc *telemetry.Service, cfg config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.SweepOfflineSensors(ctx, cfg.SweepStaleness); err != nil {
				logger.Error("sweep_failed", slog.Any("err", err))
			}
		}
	}
}

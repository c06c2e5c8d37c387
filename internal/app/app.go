package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
	healthcheck "github.com/switix/bookstore/internal/health"
	"github.com/switix/bookstore/internal/inventory"
	"github.com/switix/bookstore/internal/messaging/kafka"
	"github.com/switix/bookstore/internal/metrics"
	"github.com/switix/bookstore/internal/service/checkout"
	idempotencysvc "github.com/switix/bookstore/internal/service/idempotency"
	outboxsvc "github.com/switix/bookstore/internal/service/outbox"
	transporthttp "github.com/switix/bookstore/internal/transport/http"
	"github.com/switix/bookstore/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает приложение и блокируется до отмены ctx
// или фатальной ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if deps.closeFn == nil {
			return
		}
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	// Kafka опционален: без брокеров события копятся в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	var publisher, dlqPublisher domain.OutboxPublisher
	if kafkaProducer != nil {
		publisher = kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents)
		dlqPublisher = kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)
	}

	svc := checkout.NewService(checkout.Deps{
		Cart:     deps.cart,
		Catalog:  deps.catalog,
		Shipment: deps.shipment,
		Pay:      deps.pay,
		Stock:    inventory.NewBatch(deps.ledger, logger.WithField("component", "inventory-batch")),
		Orders:   deps.orders,
		Outbox:   deps.outboxRepo,
		Timeline: deps.timelineRepo,
		Logger:   logger.WithField("component", "checkout"),
		Metrics:  metrics.NewCheckoutMetrics(),
	})

	handler := transporthttp.NewHandler(svc, deps.idempotencyRepo, logger.WithField("component", "http"))

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.ledgerChecker != nil {
		healthHandler.RegisterChecker("ledger", deps.ledgerChecker)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var workers sync.WaitGroup
	if publisher != nil {
		worker := outboxsvc.NewWorker(
			deps.outboxRepo,
			publisher,
			outboxsvc.WithDLQPublisher(dlqPublisher),
			outboxsvc.WithPollInterval(cfg.OutboxPollInterval),
			outboxsvc.WithBatchSize(cfg.OutboxBatchSize),
			outboxsvc.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outboxsvc.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outboxsvc.WithLogger(logger.WithField("component", "outbox-worker")),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workerCtx)
		}()
	}

	cleanupWorker := idempotencysvc.NewCleanupWorker(
		deps.idempotencyRepo,
		idempotencysvc.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotencysvc.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotencysvc.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanupWorker.Run(workerCtx)
	}()

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		workers.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		workers.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

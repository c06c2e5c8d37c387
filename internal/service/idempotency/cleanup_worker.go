package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

var (
	cleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_idempotency_cleanup_runs_total",
		Help: "Total number of idempotency cleanup runs grouped by result.",
	}, []string{"result"})
	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_idempotency_cleanup_deleted_total",
		Help: "Total number of deleted expired idempotency records.",
	})
	cleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookstore_idempotency_cleanup_last_deleted",
		Help: "Number of deleted records during the last cleanup run.",
	})
)

// CleanupOptions задаёт параметры воркера очистки ключей идемпотентности.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
}

func (o CleanupOptions) normalized() CleanupOptions {
	if o.Interval <= 0 {
		o.Interval = defaultCleanupInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultCleanupBatchSize
	}
	if o.Logger == nil {
		o.Logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	return o
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) { opts.Logger = logger }
}

// WithInterval задаёт интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) { opts.Interval = interval }
}

// WithBatchSize задаёт размер порции на одно удаление.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) { opts.BatchSize = batchSize }
}

// CleanupWorker удаляет просроченные записи idempotency_keys,
// чтобы сохранённые ответы checkout не копились бесконечно.
type CleanupWorker struct {
	repo domain.IdempotencyRepository
	opts CleanupOptions
}

// NewCleanupWorker создаёт воркер очистки ключей идемпотентности.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	var opts CleanupOptions
	for _, option := range options {
		option(&opts)
	}
	return &CleanupWorker{repo: repo, opts: opts.normalized()}
}

// Run чистит сразу при старте, затем по тикеру до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.opts.Logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		cleanupRuns.WithLabelValues("error").Inc()
		w.opts.Logger.WithError(err).Warn("idempotency cleanup run failed")
		return
	}

	cleanupRuns.WithLabelValues("ok").Inc()
	cleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.opts.Logger.WithField("deleted", deleted).Info("idempotency cleanup completed")
	}
}

// DeleteExpired выгребает записи с ttl <= before порциями, пока репозиторий
// не вернёт неполную порцию. Возвращает суммарное число удалённых.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(before, w.opts.BatchSize)
		if err != nil {
			return total, err
		}
		if deleted > 0 {
			cleanupDeletedTotal.Add(float64(deleted))
		}
		total += deleted

		if deleted < w.opts.BatchSize {
			return total, nil
		}
	}
}

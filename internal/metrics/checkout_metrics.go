package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления и жизненного цикла заказов.
type CheckoutMetrics struct {
	// Счётчики исходов оформления
	ordersCreated      prometheus.Counter
	ordersRejected     *prometheus.CounterVec
	ordersCancelled    prometheus.Counter
	statusTransitions  *prometheus.CounterVec
	reservationsFailed prometheus.Counter

	// Гистограмма времени оформления
	checkoutDuration prometheus.Histogram

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics создаёт метрики с регистрацией в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_orders_rejected_total",
			Help: "Total number of checkout attempts rejected, by reason",
		}, []string{"reason"}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bookstore_order_status_transitions_total",
			Help: "Total number of order status transitions, by target status",
		}, []string{"status"}),
		reservationsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_stock_reservations_failed_total",
			Help: "Total number of batch reservations rejected for insufficient stock",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bookstore_checkout_duration_seconds",
			Help:    "Duration of checkout operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bookstore_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderRejected увеличивает счётчик отклонённых оформлений по причине.
func (m *CheckoutMetrics) RecordOrderRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *CheckoutMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordStatusTransition увеличивает счётчик переходов в целевой статус.
func (m *CheckoutMetrics) RecordStatusTransition(status string) {
	m.statusTransitions.WithLabelValues(status).Inc()
}

// RecordReservationFailed увеличивает счётчик отказов резервирования.
func (m *CheckoutMetrics) RecordReservationFailed() {
	m.reservationsFailed.Inc()
}

// RecordCheckoutDuration записывает время оформления заказа.
func (m *CheckoutMetrics) RecordCheckoutDuration(duration time.Duration) {
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

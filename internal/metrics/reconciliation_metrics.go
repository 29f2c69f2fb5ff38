package metrics

import (
	"github.com/clipfan/reconciliation-service/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconciliationMetrics интерфейс для метрик сверки и возвратов
type ReconciliationMetrics interface {
	IncWebhookEvent(eventType, outcome string)
	IncOrderCreated(currency string)
	IncOrderStatus(status, currency string)
	IncRefund(outcome, reason string)
	ObserveRefundAmount(amount float64, currency string)
	IncOrphanScanned()
	IncOrphanRecovered()
	ObserveBatchSize(size float64)
}

type reconciliationMetrics struct {
	log             *logger.Logger
	webhookEvents   *prometheus.CounterVec
	ordersCreated   *prometheus.CounterVec
	ordersStatus    *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	refundAmount    *prometheus.HistogramVec
	orphansScanned  prometheus.Counter
	orphanRecovered prometheus.Counter
	batchSize       prometheus.Histogram
}

// NewReconciliationMetrics создает новые метрики сверки
func NewReconciliationMetrics(registry *prometheus.Registry, log *logger.Logger) ReconciliationMetrics {
	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "The total number of processed webhook events",
		},
		[]string{"event_type", "outcome"},
	)

	ordersCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "The total number of created video orders",
		},
		[]string{"currency"},
	)

	ordersStatus := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_status_total",
			Help: "The total number of order status transitions",
		},
		[]string{"status", "currency"},
	)

	refunds := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "The total number of refund attempts by outcome",
		},
		[]string{"outcome", "reason"},
	)

	refundAmount := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refund_amount",
			Help:    "Refund amounts distribution in minor currency units",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6), // 100, 1000, ..., 10000000
		},
		[]string{"currency"},
	)

	orphansScanned := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_payments_scanned_total",
			Help: "The total number of orphaned gateway payments inspected",
		},
	)

	orphanRecovered := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "orphan_payments_recovered_total",
			Help: "The total number of orphaned payments matched back to orders",
		},
	)

	batchSize := promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refund_batch_size",
			Help:    "Number of orders processed per refund batch",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		},
	)

	return &reconciliationMetrics{
		log:             log,
		webhookEvents:   webhookEvents,
		ordersCreated:   ordersCreated,
		ordersStatus:    ordersStatus,
		refunds:         refunds,
		refundAmount:    refundAmount,
		orphansScanned:  orphansScanned,
		orphanRecovered: orphanRecovered,
		batchSize:       batchSize,
	}
}

// IncWebhookEvent увеличивает счетчик обработанных webhook-событий
func (m *reconciliationMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncOrderCreated увеличивает счетчик созданных заказов
func (m *reconciliationMetrics) IncOrderCreated(currency string) {
	m.ordersCreated.WithLabelValues(currency).Inc()
}

// IncOrderStatus увеличивает счетчик переходов статусов заказов
func (m *reconciliationMetrics) IncOrderStatus(status, currency string) {
	m.ordersStatus.WithLabelValues(status, currency).Inc()
}

// IncRefund увеличивает счетчик попыток возврата
func (m *reconciliationMetrics) IncRefund(outcome, reason string) {
	m.refunds.WithLabelValues(outcome, reason).Inc()
}

// ObserveRefundAmount записывает сумму возврата
func (m *reconciliationMetrics) ObserveRefundAmount(amount float64, currency string) {
	m.refundAmount.WithLabelValues(currency).Observe(amount)
}

// IncOrphanScanned увеличивает счетчик просмотренных осиротевших платежей
func (m *reconciliationMetrics) IncOrphanScanned() {
	m.orphansScanned.Inc()
}

// IncOrphanRecovered увеличивает счетчик восстановленных платежей
func (m *reconciliationMetrics) IncOrphanRecovered() {
	m.orphanRecovered.Inc()
}

// ObserveBatchSize записывает размер пакета возвратов
func (m *reconciliationMetrics) ObserveBatchSize(size float64) {
	m.batchSize.Observe(size)
}

// NoopMetrics реализация без регистрации, для тестов и выключенных метрик
type NoopMetrics struct{}

func (NoopMetrics) IncWebhookEvent(eventType, outcome string)           {}
func (NoopMetrics) IncOrderCreated(currency string)                     {}
func (NoopMetrics) IncOrderStatus(status, currency string)              {}
func (NoopMetrics) IncRefund(outcome, reason string)                    {}
func (NoopMetrics) ObserveRefundAmount(amount float64, currency string) {}
func (NoopMetrics) IncOrphanScanned()                                   {}
func (NoopMetrics) IncOrphanRecovered()                                 {}
func (NoopMetrics) ObserveBatchSize(size float64)                       {}

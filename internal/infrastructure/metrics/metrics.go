package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
)

// Metrics 业务与 HTTP 指标，每个实例使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	Payments        *prometheus.CounterVec // 缴费次数，按业务类型与结果
	PaymentAmount   *prometheus.CounterVec // 缴费金额累计
	WalletFunded    prometheus.Counter
	OutboxPublished prometheus.Counter
	OutboxFailed    prometheus.Counter
	PendingExpired  prometheus.Counter

	httpMiddleware middleware.Middleware
}

const namespace = "billpay"

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Bill payments by service and result.",
		}, []string{"service", "result"}),
		PaymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_amount_naira_total",
			Help:      "Amount debited by completed bill payments.",
		}, []string{"service"}),
		WalletFunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_funded_naira_total",
			Help:      "Amount credited to wallets.",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox messages delivered to Kafka.",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox messages that exhausted their retries.",
		}),
		PendingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_transactions_expired_total",
			Help:      "Pending transactions marked failed after the timeout.",
		}),
	}
	reg.MustRegister(m.Payments, m.PaymentAmount, m.WalletFunded, m.OutboxPublished, m.OutboxFailed, m.PendingExpired)

	m.httpMiddleware = middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Registry: reg}),
	})
	return m
}

// HTTPMiddleware go-http-metrics 中间件，由 handler 包挂到 gin 上
func (m *Metrics) HTTPMiddleware() middleware.Middleware {
	return m.httpMiddleware
}

// Handler /metrics 接口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

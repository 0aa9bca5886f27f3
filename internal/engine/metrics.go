package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла операция (включая IdP)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во вызовов по операции и исходу
	TotalRequests *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Остаток квоты API провайдера (X-Rate-Limit-Remaining)
	UpstreamRateRemaining prometheus.Gauge

	reg prometheus.Registerer
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idpgw_tool_duration_seconds",
			Help:    "Histogram of tool invocation latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tool", "outcome"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "idpgw_tool_invocations_total",
			Help: "Total number of tool invocations.",
		}, []string{"tool", "outcome"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "idpgw_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // invalid_input, forbidden, unknown_operation, upstream, circuit_open, internal

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpgw_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"connector_id"}),

		UpstreamRateRemaining: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "idpgw_okta_rate_limit_remaining",
			Help: "Last observed X-Rate-Limit-Remaining value from the identity provider.",
		}),

		reg: reg,
	}
}

// ObserveRateLimit — наблюдатель для okta.Client.
func (m *Metrics) ObserveRateLimit(remaining int) {
	m.UpstreamRateRemaining.Set(float64(remaining))
}

// ObserveBreaker — наблюдатель предохранителя okta.Client.
func (m *Metrics) ObserveBreaker(open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitBreakerState.WithLabelValues("okta").Set(v)
}

// TrackAuditBuffer публикует заполненность буфера AgentFS (backpressure).
func (m *Metrics) TrackAuditBuffer(pending func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "idpgw_audit_buffer_utilization",
		Help: "Current number of audit records waiting to be persisted.",
	}, func() float64 { return float64(pending()) })
}

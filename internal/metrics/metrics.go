package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orders"

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the engine and inventory collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	ops        *prometheus.CounterVec   // operations_total{op,outcome}
	opDuration *prometheus.HistogramVec // operation_duration_seconds{op}
	stock      *prometheus.CounterVec   // stock_adjustments_total{source,outcome}
	retries    prometheus.Counter       // number_allocation_retries_total
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "operations_total",
			Help: "Order engine operations by outcome.",
		}, []string{"op", "outcome"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "operation_duration_seconds",
			Help:    "Order engine operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		stock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_adjustments_total",
			Help: "Stock adjustments by source (order, manual) and outcome.",
		}, []string{"source", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "number_allocation_retries_total",
			Help: "Order number inserts retried after a uniqueness conflict.",
		}),
	}
	reg.MustRegister(m.ops, m.opDuration, m.stock, m.retries)
	return m
}

// Observe records one finished operation.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, outcome(err)).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) StockAdjusted(source string, err error) {
	if m == nil {
		return
	}
	m.stock.WithLabelValues(source, outcome(err)).Inc()
}

func (m *Metrics) AllocationRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the trust graph.
// Tracks state transitions by outcome, provisioning results and repair counts.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ProvisionItems    *prometheus.CounterVec
	Repairs           prometheus.Counter
	TxRetries         prometheus.Counter
}

// New registers the trust metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "share_trust_transitions_total",
			Help: "Trust graph operations by result code",
		}, []string{"operation", "result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "share_trust_operation_duration_seconds",
			Help:    "Duration of trust graph operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		ProvisionItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "share_provision_items_total",
			Help: "Bulk provisioning items by outcome",
		}, []string{"outcome"}),
		Repairs: factory.NewCounter(prometheus.CounterOpts{
			Name: "share_reconcile_repairs_total",
			Help: "Inconsistencies repaired by reconciliation",
		}),
		TxRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "share_trust_tx_retries_total",
			Help: "Transactions retried after a transient storage failure",
		}),
	}
}

// ObserveOperation records the duration and result of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time, result string) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	m.Transitions.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncrementProvisionItem(outcome string) {
	m.ProvisionItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRepairs(n int) {
	m.Repairs.Add(float64(n))
}

func (m *Metrics) IncrementTxRetry() {
	m.TxRetries.Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommissionMetrics counts money-moving transitions of the commission ledger.
type CommissionMetrics struct {
	transitions *prometheus.CounterVec
	ledger      *prometheus.CounterVec
}

// NewCommissionMetrics registers commission counters on reg. A nil registerer
// yields a no-op recorder.
func NewCommissionMetrics(reg prometheus.Registerer) *CommissionMetrics {
	if reg == nil {
		return &CommissionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brokerledger_commission_transitions_total",
		Help: "Commission entity state transitions.",
	}, []string{"entity", "status"})
	ledger := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brokerledger_commission_ledger_minor_units_total",
		Help: "Minor units written to the commission ledger by entry type and currency.",
	}, []string{"entry_type", "currency"})
	reg.MustRegister(transitions, ledger)
	return &CommissionMetrics{transitions: transitions, ledger: ledger}
}

// IncTransition records that entity moved into status.
func (c *CommissionMetrics) IncTransition(entity, status string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(entity), normalizeLabel(status)).Inc()
}

// AddLedger adds amount minor units to the ledger counter.
func (c *CommissionMetrics) AddLedger(entryType, currency string, amount int64) {
	if c == nil || c.ledger == nil || amount <= 0 {
		return
	}
	c.ledger.WithLabelValues(normalizeLabel(entryType), normalizeLabel(currency)).Add(float64(amount))
}

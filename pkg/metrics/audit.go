package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuditMetrics tracks audit trail write health and chain verification results.
type AuditMetrics struct {
	writeFailures prometheus.Counter
	findings      *prometheus.GaugeVec
}

func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	if reg == nil {
		return &AuditMetrics{}
	}
	writeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brokerledger_audit_write_failures_total",
		Help: "Audit appends that failed and were swallowed.",
	})
	findings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "brokerledger_audit_chain_rows",
		Help: "Rows reported by the most recent audit chain verification.",
	}, []string{"kind"})
	reg.MustRegister(writeFailures, findings)
	return &AuditMetrics{writeFailures: writeFailures, findings: findings}
}

// IncWriteFailure counts a swallowed audit write error.
func (a *AuditMetrics) IncWriteFailure() {
	if a == nil || a.writeFailures == nil {
		return
	}
	a.writeFailures.Inc()
}

// SetChainFindings publishes the counters of an integrity report.
func (a *AuditMetrics) SetChainFindings(checked, mismatched, broken, missing int) {
	if a == nil || a.findings == nil {
		return
	}
	a.findings.WithLabelValues("checked").Set(float64(checked))
	a.findings.WithLabelValues("mismatched").Set(float64(mismatched))
	a.findings.WithLabelValues("broken").Set(float64(broken))
	a.findings.WithLabelValues("missing").Set(float64(missing))
}

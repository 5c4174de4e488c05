package metrics

import "github.com/prometheus/client_golang/prometheus"

// JobRunMetrics counts background job attempts by outcome.
type JobRunMetrics struct {
	attempts *prometheus.CounterVec
}

func NewJobRunMetrics(reg prometheus.Registerer) *JobRunMetrics {
	if reg == nil {
		return &JobRunMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brokerledger_job_run_attempts_total",
		Help: "Background job attempts by job and outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(attempts)
	return &JobRunMetrics{attempts: attempts}
}

// IncAttempt records one attempt outcome: succeeded, retried, failed or reused.
func (j *JobRunMetrics) IncAttempt(job, outcome string) {
	if j == nil || j.attempts == nil {
		return
	}
	j.attempts.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the ledger core.
type Metrics struct {
	AppendsTotal    prometheus.Counter
	AppendFailures  prometheus.Counter
	AppendConflicts prometheus.Counter
	AppendDuration  prometheus.Histogram

	VerifyTotal    prometheus.Counter
	VerifyBroken   prometheus.Counter
	VerifyFailures prometheus.Counter
	VerifyDuration prometheus.Histogram
	EntriesScanned prometheus.Counter
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		AppendsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_appends_total",
			Help: "Total number of audit events appended to the ledger",
		}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_append_failures_total",
			Help: "Total number of failed append attempts",
		}),
		AppendConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_append_tail_conflicts_total",
			Help: "Total number of lost races for a tenant chain tail",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medledger_append_duration_seconds",
			Help:    "Time taken to build, link, and persist one ledger entry",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		VerifyTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_verifications_total",
			Help: "Total number of chain verification runs",
		}),
		VerifyBroken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_verifications_broken_total",
			Help: "Total number of verification runs that found a broken chain",
		}),
		VerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_verification_failures_total",
			Help: "Total number of verification runs aborted by storage errors or cancellation",
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medledger_verify_duration_seconds",
			Help:    "Time taken to replay and verify a tenant chain",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		EntriesScanned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medledger_verify_entries_scanned_total",
			Help: "Total number of ledger entries examined by the verifier",
		}),
	}
}

// ObserveAppend records one append attempt outcome.
func (m *Metrics) ObserveAppend(d time.Duration, err error) {
	m.AppendDuration.Observe(d.Seconds())
	if err != nil {
		m.AppendFailures.Inc()
		return
	}
	m.AppendsTotal.Inc()
}

// IncAppendConflicts counts one lost race for a chain tail.
func (m *Metrics) IncAppendConflicts() {
	m.AppendConflicts.Inc()
}

// ObserveVerify records one verification run outcome.
func (m *Metrics) ObserveVerify(d time.Duration, scanned int64, valid bool, err error) {
	m.VerifyDuration.Observe(d.Seconds())
	m.EntriesScanned.Add(float64(scanned))
	if err != nil {
		m.VerifyFailures.Inc()
		return
	}
	m.VerifyTotal.Inc()
	if !valid {
		m.VerifyBroken.Inc()
	}
}

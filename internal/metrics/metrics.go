// Package metrics holds the prometheus instruments updated by reconciliation
// runs and merges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the run instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Records     *prometheus.CounterVec
	Conflicts   *prometheus.CounterVec
	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	OutOfCorpus *prometheus.CounterVec
	Merges      *prometheus.CounterVec
}

// New creates the instruments and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litrec_records_total",
			Help: "Submission records processed, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litrec_conflicts_total",
			Help: "Conflicts reported to curators, by provider and kind.",
		}, []string{"provider", "kind"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litrec_runs_total",
			Help: "Reconciliation runs, by provider and status.",
		}, []string{"provider", "status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "litrec_run_duration_seconds",
			Help:    "Wall time of reconciliation runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"provider"}),
		OutOfCorpus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litrec_out_of_corpus_total",
			Help: "Identifiers withdrawn from a provider corpus by the sweep.",
		}, []string{"provider"}),
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litrec_merges_total",
			Help: "Reference merges, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Records, m.Conflicts, m.Runs, m.RunDuration, m.OutOfCorpus, m.Merges)
	}
	return m
}

// Record counts one processed record.
func (m *Metrics) Record(provider, outcome string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(provider, outcome).Inc()
}

// Conflict counts one reported conflict.
func (m *Metrics) Conflict(provider, kind string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(provider, kind).Inc()
}

// Run records a finished run.
func (m *Metrics) Run(provider, status string, elapsed time.Duration, outOfCorpus int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(provider, status).Inc()
	m.RunDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.OutOfCorpus.WithLabelValues(provider).Add(float64(outOfCorpus))
}

// Merge counts one merge attempt.
func (m *Metrics) Merge(outcome string) {
	if m == nil {
		return
	}
	m.Merges.WithLabelValues(outcome).Inc()
}

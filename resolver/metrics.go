package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rickchristie/flowmap"
)

const metricsNamespace = "flowmap"

var stageDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	paths         *prometheus.CounterVec
	casLookups    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registerer, or the
// default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   stageDurationBuckets,
		}, []string{"stage", "outcome"}),
		paths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flow_path_total",
			Help:      "Flow resolutions by database path.",
		}, []string{"path"}),
		casLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cas_lookups_total",
			Help:      "CAS stage results.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.stageDuration, m.paths, m.casLookups} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRun(err error) {
	if m == nil {
		return
	}
	outcome := flowmap.OutcomeOK
	if err != nil {
		outcome = flowmap.OutcomeFailed
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeStage(stage flowmap.Stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage), outcome).Observe(d.Seconds())
}

func (m *Metrics) observePath(path flowmap.MatchPath) {
	if m == nil {
		return
	}
	m.paths.WithLabelValues(string(path)).Inc()
}

func (m *Metrics) observeCAS(found bool) {
	if m == nil {
		return
	}
	result := "found"
	if !found {
		result = "none"
	}
	m.casLookups.WithLabelValues(result).Inc()
}

// Package metrics records sync run outcomes. Components take a Recorder and
// default to NoopRecorder; the daemon swaps in PrometheusRecorder.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives the structured results of each run.
type Recorder interface {
	ObservePhase(phase string, d time.Duration)
	AddOperations(kind string, n int)
	RecordRun(outcome string, d time.Duration)
	RecordSourceFailure(source string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObservePhase(string, time.Duration) {}
func (NoopRecorder) AddOperations(string, int)          {}
func (NoopRecorder) RecordRun(string, time.Duration)    {}
func (NoopRecorder) RecordSourceFailure(string)         {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	phaseDuration  *prom.HistogramVec
	runDuration    prom.Histogram
	runOutcomes    *prom.CounterVec
	operations     *prom.CounterVec
	sourceFailures *prom.CounterVec
	lastSuccess    prom.Gauge
}

// NewPrometheusRecorder constructs and registers the run metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	pr := &PrometheusRecorder{
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "prsheet",
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual sync phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "prsheet",
			Name:      "run_duration_seconds",
			Help:      "Total sync run duration",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 10),
		}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "prsheet",
			Name:      "runs_total",
			Help:      "Sync runs by outcome",
		}, []string{"outcome"}),
		operations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "prsheet",
			Name:      "operations_total",
			Help:      "Sheet operations applied by kind",
		}, []string{"kind"}),
		sourceFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "prsheet",
			Name:      "source_failures_total",
			Help:      "Record source fetch failures",
		}, []string{"source"}),
		lastSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: "prsheet",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
	reg.MustRegister(pr.phaseDuration, pr.runDuration, pr.runOutcomes, pr.operations, pr.sourceFailures, pr.lastSuccess)
	return pr
}

func (p *PrometheusRecorder) ObservePhase(phase string, d time.Duration) {
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddOperations(kind string, n int) {
	if n > 0 {
		p.operations.WithLabelValues(kind).Add(float64(n))
	}
}

func (p *PrometheusRecorder) RecordRun(outcome string, d time.Duration) {
	p.runOutcomes.WithLabelValues(outcome).Inc()
	p.runDuration.Observe(d.Seconds())
	if outcome == "success" {
		p.lastSuccess.SetToCurrentTime()
	}
}

func (p *PrometheusRecorder) RecordSourceFailure(source string) {
	p.sourceFailures.WithLabelValues(source).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

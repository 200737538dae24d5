// Package metrics counts pipeline events in a private Prometheus registry
// that can be written to a node_exporter textfile after the run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "metas"

// Run holds the collectors of one batch run. It is safe for concurrent use.
type Run struct {
	reg         *prometheus.Registry
	files       *prometheus.CounterVec
	goals       *prometheus.CounterVec
	unmapped    prometheus.Counter
	unitSeconds prometheus.Histogram
	runSeconds  prometheus.Gauge
	lastRun     prometheus.Gauge
}

// New registers the run collectors in a fresh registry.
func New() *Run {
	r := &Run{
		reg: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Input files processed, by outcome.",
		}, []string{"status"}),
		goals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_results_total",
			Help:      "Goal values computed, by goal and whether a number was produced.",
		}, []string{"goal", "outcome"}),
		unmapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmapped_branches_total",
			Help:      "Distinct branch labels that fell back to the default factor set.",
		}),
		unitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time spent processing one input file.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.reg.MustRegister(r.files, r.goals, r.unmapped, r.unitSeconds, r.runSeconds, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry { return r.reg }

func (r *Run) FileProcessed(status string, elapsed time.Duration) {
	r.files.WithLabelValues(status).Inc()
	r.unitSeconds.Observe(elapsed.Seconds())
}

func (r *Run) GoalComputed(key string, na bool) {
	outcome := "value"
	if na {
		outcome = "na"
	}
	r.goals.WithLabelValues(key, outcome).Inc()
}

func (r *Run) UnmappedBranch(string) { r.unmapped.Inc() }

// Finished records the wall time of the run.
func (r *Run) Finished(elapsed time.Duration, at time.Time) {
	r.runSeconds.Set(elapsed.Seconds())
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes every collector in the text exposition format.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

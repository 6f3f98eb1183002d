// SPDX-License-Identifier: MPL-2.0

// Package metrics records run outcomes in a Prometheus registry and exports
// them in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/provisio/provisio/internal/executor"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the run metrics. It owns a private registry so several
// recorders (one per watch iteration, or per test) never collide.
type Recorder struct {
	registry     *prometheus.Registry
	unitsTotal   *prometheus.CounterVec
	installs     *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	runDuration  prometheus.Gauge
	runSuccess   prometheus.Gauge
	lastRun      prometheus.Gauge
}

// NewRecorder returns a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provisio_units_total",
				Help: "Number of units that reached a final status, by status and kind.",
			},
			[]string{"status", "kind"},
		),
		installs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provisio_installs_total",
				Help: "Number of adapter install invocations, by kind.",
			},
			[]string{"kind"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provisio_unit_duration_seconds",
				Help:    "Time spent checking and installing a unit.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"kind"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "provisio_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "provisio_run_success",
			Help: "1 if every unit of the last run succeeded, 0 otherwise.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "provisio_last_run_timestamp_seconds",
			Help: "Unix time the last run started.",
		}),
	}
	r.registry.MustRegister(r.unitsTotal, r.installs, r.unitDuration, r.runDuration, r.runSuccess, r.lastRun)
	return r
}

// Observe adds res to the metrics.
func (r *Recorder) Observe(res *executor.Result) {
	for _, u := range res.Units {
		kind := string(u.Kind)
		r.unitsTotal.WithLabelValues(string(u.Status), kind).Inc()
		if u.Installed {
			r.installs.WithLabelValues(kind).Inc()
		}
		if u.Duration > 0 {
			r.unitDuration.WithLabelValues(kind).Observe(u.Duration.Seconds())
		}
	}
	r.runDuration.Set(res.Duration.Seconds())
	r.lastRun.Set(float64(res.Started.Unix()))
	if res.Success() {
		r.runSuccess.Set(1)
	} else {
		r.runSuccess.Set(0)
	}
}

// Registry returns the underlying registry, for callers that serve or test it.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteFile writes the metrics to path in the text exposition format. The
// file is replaced atomically.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

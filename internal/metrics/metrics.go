// Package metrics records run outcomes as Prometheus metrics and writes them
// to a node-exporter textfile so scheduled runs can be alerted on.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MY221B/bird-download/internal/report"
)

// Run holds the metrics of one refresh run on a private registry.
type Run struct {
	registry *prometheus.Registry

	locations      *prometheus.GaugeVec
	species        *prometheus.GaugeVec
	assets         *prometheus.GaugeVec
	sounds         *prometheus.GaugeVec
	fetches        *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	duration       prometheus.Gauge
	lastSuccess    prometheus.Gauge
	lastRun        prometheus.Gauge
	registryGrowth prometheus.Gauge
}

// New creates an empty metric set.
func New() *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Run{
		registry: reg,
		locations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "birdsync_locations",
			Help: "Locations processed in the last run by outcome",
		}, []string{"outcome"}),
		species: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "birdsync_location_species",
			Help: "Species reported per location in the last run",
		}, []string{"location"}),
		assets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "birdsync_assets",
			Help: "Asset convergence results in the last run",
		}, []string{"result"}),
		sounds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "birdsync_sounds",
			Help: "Sound acquisition results in the last run",
		}, []string{"result", "reason"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "birdsync_fetch_requests_total",
			Help: "Sighting queries issued by outcome",
		}, []string{"outcome"}),
		fetchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "birdsync_fetch_latency_seconds",
			Help:    "Latency of sighting queries",
			Buckets: prometheus.DefBuckets,
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "birdsync_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "birdsync_last_success_timestamp_seconds",
			Help: "Unix time of the last run where at least one location converged",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "birdsync_last_run_timestamp_seconds",
			Help: "Unix time of the last run",
		}),
		registryGrowth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "birdsync_registry_new_species",
			Help: "Species added to the registry in the last run",
		}),
	}
}

// ObserveFetch records one sighting query.
func (r *Run) ObserveFetch(err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.fetches.WithLabelValues(outcome).Inc()
	r.fetchLatency.Observe(elapsed.Seconds())
}

// ObserveReport records the aggregated run outcome.
func (r *Run) ObserveReport(rep report.Report) {
	if r == nil {
		return
	}
	r.locations.WithLabelValues("updated").Set(float64(rep.Totals.Updated))
	r.locations.WithLabelValues("failed").Set(float64(rep.Totals.Failed))
	for _, loc := range rep.Locations {
		r.species.WithLabelValues(loc.ID).Set(float64(loc.Species))
	}
	r.assets.WithLabelValues("downloaded").Set(float64(rep.Totals.Downloaded))
	r.assets.WithLabelValues("uploaded").Set(float64(rep.Totals.Uploaded))
	r.assets.WithLabelValues("missing_local").Set(float64(len(rep.Failures[report.CategoryMissingLocal])))
	r.assets.WithLabelValues("missing_cloud").Set(float64(len(rep.Failures[report.CategoryMissingCloud])))
	r.sounds.WithLabelValues("succeeded", "").Set(float64(rep.Totals.SoundsSucceeded))
	for reason, n := range rep.SoundReasons {
		r.sounds.WithLabelValues("failed", reason).Set(float64(n))
	}
	r.registryGrowth.Set(float64(rep.Totals.NewSpecies))
	if !rep.StartedAt.IsZero() && !rep.FinishedAt.IsZero() {
		r.duration.Set(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	}
	finished := rep.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	r.lastRun.Set(float64(finished.Unix()))
	if rep.Success() {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Gatherer exposes the registry.
func (r *Run) Gatherer() prometheus.Gatherer { return r.registry }

// WriteTextfile writes the metrics atomically to path. An empty path is a
// no-op.
func (r *Run) WriteTextfile(path string) error {
	if r == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Package metrics exposes pipeline counters and stage timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvr-ai/parking-occupancy/models"
)

// Outcome labels for ImagesProcessed.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector holds the pipeline metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	// ImagesProcessed counts images by outcome.
	ImagesProcessed *prometheus.CounterVec
	// StageFailures counts failed images by error kind.
	StageFailures *prometheus.CounterVec
	// Detections counts kept detections by class name.
	Detections *prometheus.CounterVec
	// StageDuration observes the wall time of each pipeline stage.
	StageDuration *prometheus.HistogramVec
}

// New creates a Collector and registers its metrics, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ImagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_images_processed_total",
			Help: "Images run through the pipeline, by outcome.",
		}, []string{"outcome"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_stage_failures_total",
			Help: "Images that failed, by error kind.",
		}, []string{"kind"}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_detections_total",
			Help: "Detections kept after suppression, by class.",
		}, []string{"class"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parking_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"stage"}),
	}

	c.registry.MustRegister(
		c.ImagesProcessed,
		c.StageFailures,
		c.Detections,
		c.StageDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveStage records how long stage took since start. A nil Collector is a no-op.
func (c *Collector) ObserveStage(stage string, start time.Time) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordSuccess counts one successful image and its kept detections.
func (c *Collector) RecordSuccess(counts models.ClassCounts) {
	if c == nil {
		return
	}
	c.ImagesProcessed.WithLabelValues(OutcomeSuccess).Inc()
	for class, n := range counts {
		c.Detections.WithLabelValues(class.String()).Add(float64(n))
	}
}

// RecordFailure counts one failed image under kind.
func (c *Collector) RecordFailure(kind string) {
	if c == nil {
		return
	}
	c.ImagesProcessed.WithLabelValues(OutcomeFailure).Inc()
	c.StageFailures.WithLabelValues(kind).Inc()
}

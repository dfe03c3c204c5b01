// Package metrics exposes Prometheus instruments for collection jobs. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curator"

type Metrics struct {
	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	running   prometheus.Gauge
	duration  *prometheus.HistogramVec
	kept      prometheus.Histogram
	storeErrs prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Collection jobs accepted by the engine.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Collection jobs that reached a terminal status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_running",
			Help:      "Supervised units currently holding a worker slot.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock time from submission to terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"status"}),
		kept: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_kept_images",
			Help:      "Images kept by completed jobs.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 500},
		}),
		storeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Background job store writes that failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submitted, m.finished, m.running, m.duration, m.kept, m.storeErrs)
	}
	return m
}

func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) UnitStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) UnitStopped() {
	if m == nil {
		return
	}
	m.running.Dec()
}

// JobFinished records a terminal transition. kept is ignored unless the job
// is done.
func (m *Metrics) JobFinished(status string, took time.Duration, kept int) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(took.Seconds())
	if status == "done" {
		m.kept.Observe(float64(kept))
	}
}

func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.storeErrs.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

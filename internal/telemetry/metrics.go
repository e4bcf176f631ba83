package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transformd"

// Outcome labels for finished jobs.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	submitted *prometheus.CounterVec
	completed *prometheus.CounterVec
	discarded prometheus.Counter
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transforms_submitted_total",
			Help:      "Transform jobs handed to the async executor.",
		}, []string{"backend"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transforms_completed_total",
			Help:      "Transform jobs finished, by outcome.",
		}, []string{"backend", "outcome"}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renditions_discarded_total",
			Help:      "Results dropped because the source changed while transforming.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_duration_seconds",
			Help:      "Wall time of a transform job including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"backend"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Transform jobs currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submitted, m.completed, m.discarded, m.duration, m.inFlight)
	}
	return m
}

func (m *Metrics) JobSubmitted(backend string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(backend).Inc()
	m.inFlight.Inc()
}

func (m *Metrics) JobFinished(backend, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.completed.WithLabelValues(backend, outcome).Inc()
	m.duration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Metrics) RenditionDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

// Expose serves the gatherer on :port/metrics in the background.
func Expose(port int, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

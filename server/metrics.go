package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the service collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: registry,
		Requests: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "anonymizer_requests_total",
				Help: "Total number of requests handled",
			},
			[]string{"endpoint", "status"},
		),
		Duration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anonymizer_request_duration_seconds",
				Help:    "Request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}
}

func (m *Metrics) Observe(endpoint string, status int, elapsed time.Duration) {
	if m == nil || m.Requests == nil || m.Duration == nil {
		return
	}

	m.Requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.Duration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

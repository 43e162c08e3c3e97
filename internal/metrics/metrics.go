package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noncecheck",
			Subsystem: "ledger",
			Name:      "fetches_total",
			Help:      "Nonce fetches by ledger and outcome.",
		},
		[]string{"ledger", "outcome"},
	)
	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "noncecheck",
			Subsystem: "ledger",
			Name:      "fetch_duration_seconds",
			Help:      "Nonce fetch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"ledger"},
	)
	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noncecheck",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Name resolutions by outcome.",
		},
		[]string{"outcome"},
	)
	sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noncecheck",
			Subsystem: "controller",
			Name:      "sessions_total",
			Help:      "Query sessions by terminal state.",
		},
		[]string{"state"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noncecheck",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(fetches, fetchDuration, resolutions, sessions, httpRequests)
	})
}

// RecordFetch counts one nonce fetch. outcome is "ok" or an error marker.
func RecordFetch(ledger, outcome string, duration time.Duration) {
	RegisterMetrics()
	fetches.WithLabelValues(ledger, outcome).Inc()
	fetchDuration.WithLabelValues(ledger).Observe(duration.Seconds())
}

func RecordResolution(outcome string) {
	RegisterMetrics()
	resolutions.WithLabelValues(outcome).Inc()
}

func RecordSession(state string) {
	RegisterMetrics()
	sessions.WithLabelValues(state).Inc()
}

func RecordHTTPRequest(method, path, status string) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, status).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

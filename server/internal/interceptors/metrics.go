package interceptors

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func InterceptWithDefaultMetrics(reg prometheus.Registerer, handler http.Handler) http.Handler {
	// Initialize Prometheus metrics
	inFlightGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "filedrop_http_in_flight_requests",
		Help: "Current number of in-flight HTTP requests",
	})
	requestCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filedrop_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code and method",
	}, []string{"code", "method"})
	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "filedrop_http_request_duration_seconds",
		Help: "Histogram of HTTP request durations in seconds",
	}, []string{"method"})

	reg.MustRegister(inFlightGauge, requestCount, requestLatency)

	return promhttp.InstrumentHandlerInFlight(inFlightGauge,
		promhttp.InstrumentHandlerDuration(requestLatency,
			promhttp.InstrumentHandlerCounter(requestCount, handler),
		),
	)
}

// ReaperMetrics tracks reap cycles.
type ReaperMetrics struct {
	cycles        *prometheus.CounterVec
	purged        prometheus.Counter
	failed        prometheus.Counter
	cycleDuration prometheus.Histogram
}

func NewReaperMetrics(reg prometheus.Registerer) *ReaperMetrics {
	m := &ReaperMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filedrop_reaper_cycles_total",
			Help: "Total reap cycles, labeled by outcome",
		}, []string{"outcome"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_reaper_purged_total",
			Help: "Total expired uploads removed from both stores",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_reaper_failed_total",
			Help: "Total expired uploads that could not be purged in a cycle",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "filedrop_reaper_cycle_duration_seconds",
			Help: "Histogram of reap cycle durations in seconds",
		}),
	}
	reg.MustRegister(m.cycles, m.purged, m.failed, m.cycleDuration)
	return m
}

func (m *ReaperMetrics) ObserveCycle(purged, failed int, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.purged.Add(float64(purged))
	m.failed.Add(float64(failed))
	m.cycleDuration.Observe(took.Seconds())
}

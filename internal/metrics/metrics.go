package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetscraper",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetscraper",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"},
	)
	uploads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sheetscraper",
			Subsystem: "files",
			Name:      "uploads_total",
			Help:      "Accepted spreadsheet uploads.",
		},
	)
	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetscraper",
			Subsystem: "processing",
			Name:      "runs_total",
			Help:      "Processing runs by result (done, failed, skipped, interrupted).",
		}, []string{"result"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sheetscraper",
			Subsystem: "processing",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one processing run.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	rows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetscraper",
			Subsystem: "processing",
			Name:      "rows_total",
			Help:      "Processed rows by record status.",
		}, []string{"status"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sheetscraper",
			Subsystem: "processing",
			Name:      "queue_depth",
			Help:      "Jobs waiting in the processing queue.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{httpRequests, httpDuration, uploads, runs, runDuration, rows, queueDepth}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below helpers no-op if Register hasn't been called.

func ObserveRequest(method, route string, code int, seconds float64) {
	if regOK.Load() {
		httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(seconds)
	}
}

func IncUpload() {
	if regOK.Load() {
		uploads.Inc()
	}
}

func ObserveRun(result string, seconds float64) {
	if regOK.Load() {
		runs.WithLabelValues(result).Inc()
		runDuration.Observe(seconds)
	}
}

func AddRows(status string, n int) {
	if regOK.Load() && n > 0 {
		rows.WithLabelValues(status).Add(float64(n))
	}
}

func SetQueueDepth(n int) {
	if regOK.Load() {
		queueDepth.Set(float64(n))
	}
}

// Package metrics exposes Prometheus collectors for the bell board.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every bellboard collector plus the Go and process ones.
var Registry = prometheus.NewRegistry()

var (
	TicksPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bellboard",
		Name:      "ticks_published_total",
		Help:      "Board snapshots published to subscribers.",
	})

	TicksDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bellboard",
		Name:      "ticks_dropped_total",
		Help:      "Snapshots dropped because a subscriber was not keeping up.",
	})

	BellRings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bellboard",
		Name:      "bell_rings_total",
		Help:      "Bells rung, by the period that started.",
	}, []string{"period"})

	ResolveErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bellboard",
		Name:      "resolve_errors_total",
		Help:      "Schedule resolutions that failed on a malformed time range.",
	})

	Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bellboard",
		Name:      "subscribers",
		Help:      "Live countdown subscribers.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bellboard",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bellboard",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TicksPublished,
		TicksDropped,
		BellRings,
		ResolveErrors,
		Subscribers,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

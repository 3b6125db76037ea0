package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefinder",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinefinder",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefinder",
		Name:      "upstream_requests_total",
		Help:      "Total requests to the metadata API by endpoint and result status.",
	}, []string{"endpoint", "status"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinefinder",
		Name:      "upstream_request_duration_seconds",
		Help:      "Metadata API request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	SearchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefinder",
		Name:      "search_outcomes_total",
		Help:      "Search controller outcomes (ok, validation, no_matches, filtered_empty, error, superseded).",
	}, []string{"outcome"})

	DetailLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefinder",
		Name:      "detail_loads_total",
		Help:      "Detail aggregations by result.",
	}, []string{"result"})

	DetailLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cinefinder",
		Name:      "detail_load_duration_seconds",
		Help:      "Duration of the five-way detail fan-out in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	StaleResponsesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefinder",
		Name:      "stale_responses_total",
		Help:      "Responses discarded because a newer request superseded them.",
	}, []string{"kind"})

	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cinefinder",
		Name:      "sessions_active",
		Help:      "Number of live client sessions.",
	})

	ThemeTogglesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinefinder",
		Name:      "theme_toggles_total",
		Help:      "Theme toggles by resulting theme.",
	}, []string{"theme"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		SearchOutcomesTotal,
		DetailLoadsTotal,
		DetailLoadDuration,
		StaleResponsesTotal,
		SessionsActive,
		ThemeTogglesTotal,
	)
}

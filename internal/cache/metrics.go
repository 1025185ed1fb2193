// Package cache — Prometheus instrumentation.
//
// Counters are labeled by cache class and outcome so dashboards can show
// hit ratios and offline degradation per bucket without unbounded
// cardinality (both label sets are small and fixed).
package cache

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for cacheRequests.
const (
	outcomeFresh           = "fresh"
	outcomeMiss            = "miss"
	outcomeOfflineFallback = "offline_fallback"
	outcomeOfflineError    = "offline_error"
	outcomePassthrough     = "passthrough"
)

var (
	// cacheRequests counts intercepted GET requests by class and outcome.
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_cache_requests_total",
			Help: "Total intercepted GET requests by cache class and outcome.",
		},
		[]string{"class", "outcome"},
	)

	// cacheRevalidations counts background stale-while-revalidate fetches.
	cacheRevalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_cache_revalidations_total",
			Help: "Background revalidation fetches by class and result.",
		},
		[]string{"class", "result"},
	)
)

func init() {
	prometheus.MustRegister(cacheRequests, cacheRevalidations)
}

// Package metrics defines the Prometheus collectors for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CyclesTotal counts completed poll cycles by outcome
	// (success, no_subreddits, rate_limited, fetch_error, skipped).
	CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hawk_poll_cycles_total",
		Help: "Completed poll cycles by outcome",
	}, []string{"outcome"})

	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hawk_fetch_duration_seconds",
		Help:    "Duration of Reddit listing fetches",
		Buckets: prometheus.DefBuckets,
	})

	PostsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hawk_posts_fetched_total",
		Help: "Posts parsed from upstream listings",
	})

	PostsMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hawk_posts_matched_total",
		Help: "Posts that passed keyword filtering",
	})

	RateLimitRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hawk_ratelimit_remaining",
		Help: "Remaining Reddit API quota as last reported upstream",
	})

	NotifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hawk_notify_errors_total",
		Help: "Notification sink delivery failures",
	})
)

// Register adds all collectors to the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CyclesTotal,
		FetchDuration,
		PostsFetched,
		PostsMatched,
		RateLimitRemaining,
		NotifyErrors,
	)
}

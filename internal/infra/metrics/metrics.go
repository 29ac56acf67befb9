package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the link lifecycle and visit pipeline, exposed through the
// /metrics server.
var (
	RedirectsServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linktrace_redirects_served_total",
		Help: "Number of short-link redirects served.",
	})

	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linktrace_links_created_total",
		Help: "Number of short links created.",
	})

	LinksReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linktrace_links_reaped_total",
		Help: "Number of expired free-tier links purged by the reaper.",
	})

	VisitsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linktrace_visits_recorded_total",
		Help: "Number of visit events persisted to the history.",
	})

	VisitsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linktrace_visits_dropped_total",
		Help: "Number of visit events dropped because the store was unavailable.",
	})

	GeoLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linktrace_geo_lookup_failures_total",
		Help: "Number of geolocation lookups that failed or timed out.",
	})
)

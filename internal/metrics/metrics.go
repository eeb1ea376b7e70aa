// Package metrics collects and exposes Prometheus metrics for the
// profile synchronization core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements session.Metrics on a Prometheus registry.
type Collector struct {
	cacheHits     prometheus.Counter
	guardRefusals prometheus.Counter
	fetchSuccess  prometheus.Counter
	fetchTimeout  prometheus.Counter
	fetchFail     prometheus.Counter
	created       prometheus.Counter
	fetchLatency  prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_profile_cache_hits_total",
			Help: "Profile resolutions served from the in-process cache.",
		}),
		guardRefusals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_profile_guard_refusals_total",
			Help: "Fetch attempts refused by the in-flight/throttle guard.",
		}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_profile_fetch_success_total",
			Help: "Profile store round trips that returned a profile.",
		}),
		fetchTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_profile_fetch_timeout_total",
			Help: "Profile store round trips that exceeded their deadline.",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_profile_fetch_fail_total",
			Help: "Profile store round trips that failed for other reasons.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_profile_created_total",
			Help: "Profiles auto-provisioned on a not-found result.",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashboard_profile_fetch_latency_seconds",
			Help:    "Latency of profile store round trips.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.guardRefusals,
		c.fetchSuccess,
		c.fetchTimeout,
		c.fetchFail,
		c.created,
		c.fetchLatency,
	)

	return c
}

func (c *Collector) RecordCacheHit()       { c.cacheHits.Inc() }
func (c *Collector) RecordGuardRefusal()   { c.guardRefusals.Inc() }
func (c *Collector) RecordFetchSuccess()   { c.fetchSuccess.Inc() }
func (c *Collector) RecordFetchTimeout()   { c.fetchTimeout.Inc() }
func (c *Collector) RecordFetchError()     { c.fetchFail.Inc() }
func (c *Collector) RecordProfileCreated() { c.created.Inc() }

func (c *Collector) RecordFetchLatency(d time.Duration) {
	c.fetchLatency.Observe(d.Seconds())
}

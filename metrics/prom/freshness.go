package prom

import "github.com/prometheus/client_golang/prometheus"

// FreshnessAdapter exports the freshness-policy-specific counters and
// gauges the slab-level Adapter above doesn't cover: per-shard
// hit/miss/invalidate/update totals, the distribution of EW estimates
// observed at write time, the RPC fabric's in-flight gauge, and a
// tracker's self-reported sketch memory footprint (spec.md §3
// "Freshness stats", §4.1 "storage_bytes", §4.3 "backpressure").
//
// Grounded on the same prometheus.NewCounter/NewGauge construction
// style as Adapter above; split into its own file/type because it
// instruments a different layer (cacheserver/dbstore/rpc) than the
// slab engine's own Metrics interface.
type FreshnessAdapter struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	invalidates prometheus.Counter
	updates     prometheus.Counter
	ew          prometheus.Histogram
	inFlight    prometheus.Gauge
	sketchBytes prometheus.Gauge
}

// NewFreshnessAdapter constructs a FreshnessAdapter and registers its
// metrics with reg (nil => prometheus.DefaultRegisterer).
func NewFreshnessAdapter(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *FreshnessAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &FreshnessAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "cache_hits_total",
			Help: "Cache server hits", ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "cache_misses_total",
			Help: "Cache server misses", ConstLabels: constLabels,
		}),
		invalidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "invalidates_total",
			Help: "Freshness-policy invalidate actions dispatched", ConstLabels: constLabels,
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "updates_total",
			Help: "Freshness-policy update actions dispatched", ConstLabels: constLabels,
		}),
		ew: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "ew_estimate",
			Help:        "Distribution of EW estimates consulted at write time",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 16),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "rpc_in_flight",
			Help: "Current in-flight cache-shard RPCs", ConstLabels: constLabels,
		}),
		sketchBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "tracker_storage_bytes",
			Help: "Tracker-reported memory footprint", ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.invalidates, a.updates, a.ew, a.inFlight, a.sketchBytes)
	return a
}

// Hit increments the cache-server hit counter.
func (a *FreshnessAdapter) Hit() { a.hits.Inc() }

// Miss increments the cache-server miss counter.
func (a *FreshnessAdapter) Miss() { a.misses.Inc() }

// Invalidate increments the freshness-policy invalidate counter.
func (a *FreshnessAdapter) Invalidate() { a.invalidates.Inc() }

// Update increments the freshness-policy update counter.
func (a *FreshnessAdapter) Update() { a.updates.Inc() }

// ObserveEW records an EW estimate consulted by the policy engine.
func (a *FreshnessAdapter) ObserveEW(ew float64) { a.ew.Observe(ew) }

// SetInFlight reports the RPC fabric's current in-flight call count.
func (a *FreshnessAdapter) SetInFlight(n int64) { a.inFlight.Set(float64(n)) }

// SetSketchBytes reports a tracker's current self-estimated footprint.
func (a *FreshnessAdapter) SetSketchBytes(n int) { a.sketchBytes.Set(float64(n)) }

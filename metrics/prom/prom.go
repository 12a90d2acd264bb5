// Package prom exports store diagnostics and bounded map signals as
// Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/doccache/cache"
	"github.com/IvanBrykalov/doccache/store"
)

// Adapter implements store.Diagnostics and store.MapMetricsProvider.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	requests      *prometheus.CounterVec
	fetches       prometheus.Counter
	retries       prometheus.Counter
	fetchErrors   prometheus.Counter
	invalidations *prometheus.CounterVec
	clamped       prometheus.Counter

	mapHits   *prometheus.CounterVec
	mapMisses *prometheus.CounterVec
	mapEvicts *prometheus.CounterVec
	mapSize   *prometheus.GaugeVec
}

// New constructs a Prometheus adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		}, labels)
	}

	a := &Adapter{
		requests:      counterVec("requests_total", "Load requests by outcome", "result"),
		fetches:       counter("fetches_total", "Backing store fetches"),
		retries:       counter("fetch_retries_total", "Fetches repeated after an invalidation"),
		fetchErrors:   counter("fetch_errors_total", "Failed backing store fetches"),
		invalidations: counterVec("invalidations_total", "Invalidate calls by result", "result"),
		clamped:       counter("capacity_clamped_total", "Existence capacity raised to the entity capacity"),
		mapHits:       counterVec("map_hits_total", "Bounded map hits", "cache"),
		mapMisses:     counterVec("map_misses_total", "Bounded map misses", "cache"),
		mapEvicts:     counterVec("map_evictions_total", "Bounded map evictions by reason", "cache", "reason"),
		mapSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "map_size_entries",
			Help:        "Resident entries of the whole map",
			ConstLabels: constLabels,
		}, []string{"cache"}),
	}
	reg.MustRegister(
		a.requests, a.fetches, a.retries, a.fetchErrors, a.invalidations, a.clamped,
		a.mapHits, a.mapMisses, a.mapEvicts, a.mapSize,
	)
	return a
}

func (a *Adapter) Hit()         { a.requests.WithLabelValues("hit").Inc() }
func (a *Adapter) Miss()        { a.requests.WithLabelValues("miss").Inc() }
func (a *Adapter) NegativeHit() { a.requests.WithLabelValues("negative_hit").Inc() }
func (a *Adapter) Fetch()       { a.fetches.Inc() }
func (a *Adapter) Retry()       { a.retries.Inc() }
func (a *Adapter) FetchError()  { a.fetchErrors.Inc() }

// Invalidation counts one Invalidate call under its result label.
func (a *Adapter) Invalidation(r store.InvalidateResult) {
	a.invalidations.WithLabelValues(r.String()).Inc()
}

// CapacityClamped counts a clamped configuration.
func (a *Adapter) CapacityClamped(int, int) { a.clamped.Inc() }

// MapMetrics returns cache.Metrics for the bounded map called name.
func (a *Adapter) MapMetrics(name string) cache.Metrics {
	return &mapMetrics{
		hits:   a.mapHits.WithLabelValues(name),
		misses: a.mapMisses.WithLabelValues(name),
		evicts: a.mapEvicts.MustCurryWith(prometheus.Labels{"cache": name}),
		size:   a.mapSize.WithLabelValues(name),
	}
}

// mapMetrics implements cache.Metrics for one map.
type mapMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	evicts *prometheus.CounterVec
	size   prometheus.Gauge
}

func (m *mapMetrics) Hit()  { m.hits.Inc() }
func (m *mapMetrics) Miss() { m.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (m *mapMetrics) Evict(r cache.EvictReason) {
	m.evicts.WithLabelValues(r.String()).Inc()
}

// Size sets the gauge to the resident entries of the whole map.
func (m *mapMetrics) Size(entries int) { m.size.Set(float64(entries)) }

// Compile-time checks.
var (
	_ store.Diagnostics        = (*Adapter)(nil)
	_ store.MapMetricsProvider = (*Adapter)(nil)
	_ cache.Metrics            = (*mapMetrics)(nil)
)

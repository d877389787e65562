package cache

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "menlo.ai/jan-feed-gateway/cache"

// CacheMetrics tracks cache usage across both tiers
type CacheMetrics struct {
	Hits          atomic.Int64
	FallbackHits  atomic.Int64
	Misses        atomic.Int64
	Errors        atomic.Int64
	Invalidations atomic.Int64
	Evictions     atomic.Int64

	otelHits          metric.Int64Counter
	otelFallbackHits  metric.Int64Counter
	otelMisses        metric.Int64Counter
	otelErrors        metric.Int64Counter
	otelInvalidations metric.Int64Counter
	otelEvictions     metric.Int64Counter
}

func newCacheMetrics() *CacheMetrics {
	m := &CacheMetrics{}
	meter := otel.Meter(meterName)

	m.otelHits, _ = meter.Int64Counter("feed.cache.hits",
		metric.WithDescription("Number of cache hits on the distributed tier"))
	m.otelFallbackHits, _ = meter.Int64Counter("feed.cache.fallback_hits",
		metric.WithDescription("Number of cache hits served by the local tier"))
	m.otelMisses, _ = meter.Int64Counter("feed.cache.misses",
		metric.WithDescription("Number of cache misses"))
	m.otelErrors, _ = meter.Int64Counter("feed.cache.errors",
		metric.WithDescription("Number of distributed tier errors"))
	m.otelInvalidations, _ = meter.Int64Counter("feed.cache.invalidations",
		metric.WithDescription("Number of keys removed by invalidation"))
	m.otelEvictions, _ = meter.Int64Counter("feed.cache.evictions",
		metric.WithDescription("Number of expired local entries evicted by the sweep"))
	return m
}

func (m *CacheMetrics) recordHit(ctx context.Context, fallback bool) {
	if fallback {
		m.FallbackHits.Add(1)
		add(ctx, m.otelFallbackHits, 1)
		return
	}
	m.Hits.Add(1)
	add(ctx, m.otelHits, 1)
}

func (m *CacheMetrics) recordMiss(ctx context.Context) {
	m.Misses.Add(1)
	add(ctx, m.otelMisses, 1)
}

func (m *CacheMetrics) recordError(ctx context.Context) {
	m.Errors.Add(1)
	add(ctx, m.otelErrors, 1)
}

func (m *CacheMetrics) recordInvalidations(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.Invalidations.Add(int64(n))
	add(ctx, m.otelInvalidations, int64(n))
}

func (m *CacheMetrics) recordEvictions(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.Evictions.Add(int64(n))
	add(ctx, m.otelEvictions, int64(n))
}

func add(ctx context.Context, counter metric.Int64Counter, n int64) {
	if counter != nil {
		counter.Add(ctx, n)
	}
}

// Snapshot returns a point-in-time snapshot of metrics
func (m *CacheMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":          m.Hits.Load(),
		"fallback_hits": m.FallbackHits.Load(),
		"misses":        m.Misses.Load(),
		"errors":        m.Errors.Load(),
		"invalidations": m.Invalidations.Load(),
		"evictions":     m.Evictions.Load(),
	}
}

// HitRate returns the cache hit rate (0.0 to 1.0) counting both tiers
func (m *CacheMetrics) HitRate() float64 {
	hits := m.Hits.Load() + m.FallbackHits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

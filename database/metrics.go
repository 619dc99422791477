package database

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "tenant-records/database"

	metricHit       = "tenant_cache.hit"
	metricMiss      = "tenant_cache.miss"
	metricCreated   = "tenant_cache.created"
	metricEvictions = "tenant_cache.evictions"
	metricErrors    = "tenant_cache.errors"
	metricActive    = "tenant_cache.active"

	attrReason = "reason"
)

// Eviction reasons reported on tenant_cache.evictions.
const (
	reasonIdle     = "idle"
	reasonCapacity = "capacity"
	reasonShutdown = "shutdown"
)

// cacheMetrics holds the instruments of the handle cache. Instruments that
// fail to register are left nil and skipped when recording.
type cacheMetrics struct {
	hit       metric.Int64Counter
	miss      metric.Int64Counter
	created   metric.Int64Counter
	evictions metric.Int64Counter
	errors    metric.Int64Counter
	active    metric.Int64UpDownCounter
}

func newCacheMetrics(provider metric.MeterProvider) (*cacheMetrics, error) {
	meter := provider.Meter(meterName)
	m := &cacheMetrics{}

	var err error
	if m.hit, err = meter.Int64Counter(metricHit,
		metric.WithDescription("Tenant handle lookups served from the cache"),
		metric.WithUnit("{hit}")); err != nil {
		return nil, err
	}
	if m.miss, err = meter.Int64Counter(metricMiss,
		metric.WithDescription("Tenant handle lookups that required construction"),
		metric.WithUnit("{miss}")); err != nil {
		return nil, err
	}
	if m.created, err = meter.Int64Counter(metricCreated,
		metric.WithDescription("Tenant handles constructed"),
		metric.WithUnit("{handle}")); err != nil {
		return nil, err
	}
	if m.evictions, err = meter.Int64Counter(metricEvictions,
		metric.WithDescription("Tenant handles evicted from the cache"),
		metric.WithUnit("{handle}")); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter(metricErrors,
		metric.WithDescription("Failed tenant handle constructions"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter(metricActive,
		metric.WithDescription("Tenant handles currently cached"),
		metric.WithUnit("{handle}")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *cacheMetrics) recordHit(ctx context.Context) {
	if m != nil {
		m.hit.Add(ctx, 1)
	}
}

func (m *cacheMetrics) recordMiss(ctx context.Context) {
	if m != nil {
		m.miss.Add(ctx, 1)
	}
}

func (m *cacheMetrics) recordCreated(ctx context.Context) {
	if m != nil {
		m.created.Add(ctx, 1)
		m.active.Add(ctx, 1)
	}
}

func (m *cacheMetrics) recordError(ctx context.Context) {
	if m != nil {
		m.errors.Add(ctx, 1)
	}
}

func (m *cacheMetrics) recordEviction(ctx context.Context, reason string) {
	if m != nil {
		m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
		m.active.Add(ctx, -1)
	}
}

package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/wayfarer"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gateway metrics
	RequestsTotal       metric.Int64Counter
	RequestErrorsTotal  metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	RequestReplaysTotal metric.Int64Counter

	// Refresh coordinator metrics
	RefreshAttemptsTotal  metric.Int64Counter
	RefreshFailuresTotal  metric.Int64Counter
	RefreshCoalescedTotal metric.Int64Counter

	// Collection cache metrics
	CacheHitsTotal          metric.Int64Counter
	CacheMissesTotal        metric.Int64Counter
	CacheRevalidationsTotal metric.Int64Counter
	CacheRollbacksTotal     metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Gateway metrics
	m.RequestsTotal, _ = meter.Int64Counter(
		"wayfarer.gateway.requests.total",
		metric.WithDescription("Total number of outbound API requests"),
		metric.WithUnit("{request}"),
	)

	m.RequestErrorsTotal, _ = meter.Int64Counter(
		"wayfarer.gateway.errors.total",
		metric.WithDescription("Total number of failed API requests by error kind"),
		metric.WithUnit("{error}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"wayfarer.gateway.request.duration",
		metric.WithDescription("Duration of outbound API requests"),
		metric.WithUnit("ms"),
	)

	m.RequestReplaysTotal, _ = meter.Int64Counter(
		"wayfarer.gateway.replays.total",
		metric.WithDescription("Total number of requests replayed after a token refresh"),
		metric.WithUnit("{request}"),
	)

	// Refresh coordinator metrics
	m.RefreshAttemptsTotal, _ = meter.Int64Counter(
		"wayfarer.refresh.attempts.total",
		metric.WithDescription("Total number of refresh token exchanges"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshFailuresTotal, _ = meter.Int64Counter(
		"wayfarer.refresh.failures.total",
		metric.WithDescription("Total number of refresh token exchanges that ended the session"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshCoalescedTotal, _ = meter.Int64Counter(
		"wayfarer.refresh.coalesced.total",
		metric.WithDescription("Total number of callers that waited on an in-flight refresh"),
		metric.WithUnit("{caller}"),
	)

	// Collection cache metrics
	m.CacheHitsTotal, _ = meter.Int64Counter(
		"wayfarer.cache.hits.total",
		metric.WithDescription("Total number of collection reads served from cache"),
		metric.WithUnit("{read}"),
	)

	m.CacheMissesTotal, _ = meter.Int64Counter(
		"wayfarer.cache.misses.total",
		metric.WithDescription("Total number of collection reads that fetched inline"),
		metric.WithUnit("{read}"),
	)

	m.CacheRevalidationsTotal, _ = meter.Int64Counter(
		"wayfarer.cache.revalidations.total",
		metric.WithDescription("Total number of background revalidation fetches"),
		metric.WithUnit("{fetch}"),
	)

	m.CacheRollbacksTotal, _ = meter.Int64Counter(
		"wayfarer.cache.rollbacks.total",
		metric.WithDescription("Total number of optimistic mutations rolled back"),
		metric.WithUnit("{mutation}"),
	)

	return m
}

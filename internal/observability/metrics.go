package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Provider call rate by provider (openweather, onecall, visualcrossing, geoapify, opencage, openai) and status.
	UpstreamCallsTotal *prometheus.CounterVec

	// Provider latency. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per provider. Watch for: high retries = unstable upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Provider errors by category (see upstream.CategorizeError).
	UpstreamErrorsTotal *prometheus.CounterVec

	CacheHitsTotal                *prometheus.CounterVec
	CacheMissesTotal              *prometheus.CounterVec
	CacheErrorsTotal              *prometheus.CounterVec
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses for one key. Watch for: stampedes on popular locations.
	CacheStampedeDetectedTotal prometheus.Counter
	CacheStampedeConcurrency   prometheus.Histogram

	// Callers that waited on another caller's in-flight fetch.
	RequestCoalescingHitsTotal   prometheus.Counter
	RequestCoalescingWaitSeconds prometheus.Histogram

	// Stale entries served because the provider failed.
	StaleCacheServesTotal prometheus.Counter
	StaleCacheAgeSeconds  prometheus.Histogram

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// 0 closed, 1 open, 2 half-open.
	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Start-time suggestions by mode and result.
	SuggestionsTotal *prometheus.CounterVec

	// PDF reports by result.
	ReportsTotal *prometheus.CounterVec

	// Saved-location operations by operation and result.
	SavedLocationOpsTotal *prometheus.CounterVec

	// Total weather lookups.
	WeatherQueriesTotal prometheus.Counter

	// Per-location query count (allow-list; others go to "other").
	WeatherQueriesByLocationTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// In-flight requests when shutdown began.
	ShutdownInFlightRequests prometheus.Gauge

	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "httpRequestsTotal", Help: "Total number of HTTP requests"},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "httpRequestsInFlight", Help: "Number of HTTP requests currently being served"},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstreamCallsTotal", Help: "Total number of provider API calls"},
		[]string{"provider", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Provider API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstreamRetriesTotal", Help: "Total number of provider retry attempts"},
		[]string{"provider"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstreamErrorsTotal", Help: "Provider errors by category"},
		[]string{"provider", "category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheHitsTotal", Help: "Total number of cache hits"},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheMissesTotal", Help: "Total number of cache misses"},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheErrorsTotal", Help: "Cache backend errors by operation and category"},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "result"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheStampedeDetectedTotal", Help: "Cache misses that overlapped another miss for the same key"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent misses for one key when a stampede is detected",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "requestCoalescingHitsTotal", Help: "Requests served by another caller's in-flight fetch"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time coalesced callers waited for the shared fetch",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	StaleCacheServesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "staleCacheServesTotal", Help: "Stale weather served after provider failure"},
	)
	StaleCacheAgeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staleCacheAgeSeconds",
			Help:    "Age of stale weather served",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200},
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheWarmingTotal", Help: "Cache warming runs"},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "cacheWarmingErrorsTotal", Help: "Cache warming runs with at least one failed location"},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "circuitBreakerState", Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)"},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "circuitBreakerTransitionsTotal", Help: "Circuit breaker state transitions"},
		[]string{"component", "from", "to"},
	)
	SuggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suggestionsTotal", Help: "Start-time suggestions by mode and result"},
		[]string{"mode", "result"},
	)
	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reportsTotal", Help: "PDF weather reports by result"},
		[]string{"result"},
	)
	SavedLocationOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "savedLocationOpsTotal", Help: "Saved-location operations by operation and result"},
		[]string{"operation", "result"},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "weatherQueriesTotal", Help: "Total number of weather lookups"},
	)
	WeatherQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByLocationTotal",
			Help: "Weather queries by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rateLimitDeniedTotal", Help: "Total number of requests denied by rate limiter (429)"},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "shutdownInFlightRequests", Help: "In-flight requests when graceful shutdown began"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal, UpstreamErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		StaleCacheServesTotal, StaleCacheAgeSeconds,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		SuggestionsTotal, ReportsTotal, SavedLocationOpsTotal,
		WeatherQueriesTotal, WeatherQueriesByLocationTotal,
		RateLimitDeniedTotal, ShutdownInFlightRequests,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with the overload window.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.Snapshot(traffic.ComponentAPI, window).Total()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.Snapshot(traffic.ComponentAPI, window).Denials) },
			),
		)
	})
}

// RecordCircuitBreakerTransition records a state change and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// RecordUpstreamCall records one provider call outcome.
func RecordUpstreamCall(provider, status string, d time.Duration) {
	UpstreamCallsTotal.WithLabelValues(provider, status).Inc()
	UpstreamDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordWeatherQuery records a weather query for the given location name.
func RecordWeatherQuery(location string) {
	WeatherQueriesTotal.Inc()
	WeatherQueriesByLocationTotal.WithLabelValues(MetricLocationLabel(location)).Inc()
}

// MetricLocationLabel returns the normalized location when tracked, else "other".
func MetricLocationLabel(location string) string {
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc]
	trackedLocationsMu.RUnlock()
	if ok {
		return loc
	}
	return "other"
}

func normalizeLocationForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

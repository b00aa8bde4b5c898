package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/traffic"
)

// HealthConfig holds lifecycle thresholds and dependency probes for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	RateLimitBurst         int // 0 when rate limiter disabled
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	// CachePing and SavedPing, when set, check memcached reachability.
	CachePing func() error
	SavedPing func() error
	// GeocoderConfigured and AdvisorConfigured report whether the matching API key is set.
	GeocoderConfigured bool
	AdvisorConfigured  bool
	// AdvisorBreakerState reports the AI circuit breaker ("closed", "open", "half_open").
	AdvisorBreakerState func() string
}

// degradedComponents are checked in order for error-rate breaches.
var degradedComponents = []string{
	traffic.ComponentWeather,
	traffic.ComponentGeocoder,
	traffic.ComponentAdvisor,
	traffic.ComponentAPI,
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   observability.Version,
		"uptime":    lifecycle.Uptime().Round(time.Second).String(),
		"checks":    h.dependencyChecks(result),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.client.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}

	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.Snapshot(traffic.ComponentAPI, cfg.OverloadWindow).Denials) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}

	if cfg.IdleWindow > 0 && cfg.MinimumLifespan > 0 && lifecycle.Uptime() >= cfg.MinimumLifespan {
		if traffic.Snapshot(traffic.ComponentAPI, cfg.IdleWindow).Total() < cfg.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}

	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		for _, component := range degradedComponents {
			if h.componentDegraded(component) {
				return healthResult{"degraded", http.StatusServiceUnavailable, component + "_error_rate"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func (h *Handler) componentDegraded(component string) bool {
	counts := traffic.Snapshot(component, h.healthConfig.DegradedWindow)
	if counts.Successes+counts.Failures == 0 {
		return false
	}
	return counts.ErrorPct() >= float64(h.healthConfig.DegradedErrorPct)
}

func (h *Handler) dependencyChecks(result healthResult) map[string]string {
	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "api_key_invalid" || result.reason == traffic.ComponentWeather+"_error_rate" {
		checks["weatherApi"] = "unhealthy"
	}
	cfg := h.healthConfig
	if cfg == nil {
		return checks
	}

	switch {
	case !cfg.GeocoderConfigured:
		checks["geocoder"] = "not_configured"
	case cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 && h.componentDegraded(traffic.ComponentGeocoder):
		checks["geocoder"] = "degraded"
	default:
		checks["geocoder"] = "healthy"
	}

	switch {
	case !cfg.AdvisorConfigured:
		checks["advisor"] = "not_configured"
	case cfg.AdvisorBreakerState != nil && cfg.AdvisorBreakerState() == "open":
		checks["advisor"] = "circuit_open"
	case cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 && h.componentDegraded(traffic.ComponentAdvisor):
		checks["advisor"] = "degraded"
	default:
		checks["advisor"] = "healthy"
	}

	if cfg.CachePing != nil {
		checks["cache"] = pingStatus(cfg.CachePing)
	}
	if cfg.SavedPing != nil {
		checks["savedStore"] = pingStatus(cfg.SavedPing)
	}
	return checks
}

func pingStatus(ping func() error) string {
	if ping() == nil {
		return "healthy"
	}
	return "unhealthy"
}

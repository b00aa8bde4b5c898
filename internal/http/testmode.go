package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/traffic"
)

// testWindow is the window reported by GET /test when no degraded window is configured.
const testWindow = 60 * time.Second

// GetTestStatus handles GET /test. Returns the traffic windows health is computed from.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := testWindow
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}

	components := make(map[string]interface{}, len(degradedComponents))
	for _, component := range degradedComponents {
		counts := traffic.Snapshot(component, window)
		components[component] = map[string]interface{}{
			"successes": counts.Successes,
			"failures":  counts.Failures,
			"denials":   counts.Denials,
			"error_pct": counts.ErrorPct(),
		}
	}

	cfg := make(map[string]interface{})
	if h.healthConfig != nil {
		overloadThreshold := 0
		if h.healthConfig.RateLimitRPS > 0 {
			overloadThreshold = int(float64(h.healthConfig.RateLimitRPS) *
				h.healthConfig.OverloadWindow.Seconds() *
				float64(h.healthConfig.OverloadThresholdPct) / 100)
		}
		cfg["rate_limit_rps"] = h.healthConfig.RateLimitRPS
		cfg["rate_limit_burst"] = h.healthConfig.RateLimitBurst
		cfg["overload_threshold"] = overloadThreshold
		cfg["overload_window_seconds"] = h.healthConfig.OverloadWindow.Seconds()
		cfg["degraded_error_pct"] = h.healthConfig.DegradedErrorPct
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window_length": window.String(),
		"components":    components,
		"shutting_down": lifecycle.IsShuttingDown(),
		"config":        cfg,
	})
}

// PostTestAction handles POST /test/{action} for load, error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "load":
		h.postTestLoad(w, r)
	case "error":
		h.postTestError(w, r)
	case "reset":
		h.postTestReset(w, r)
	case "shutdown":
		h.postTestShutdown(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

type testCountBody struct {
	Count     int    `json:"count"`
	Component string `json:"component"`
}

func readTestCount(r *http.Request, fallback int) testCountBody {
	var body testCountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = fallback
	}
	return body
}

// postTestLoad records simulated API requests, going through the rate limiter when one is configured.
func (h *Handler) postTestLoad(w http.ResponseWriter, r *http.Request) {
	body := readTestCount(r, 10)
	var accepted, denied int
	for i := 0; i < body.Count; i++ {
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			traffic.Record(traffic.ComponentAPI, traffic.Denied)
			observability.RateLimitDeniedTotal.Inc()
			denied++
			continue
		}
		traffic.Record(traffic.ComponentAPI, traffic.Success)
		accepted++
	}

	msg := "Recorded " + strconv.Itoa(accepted) + " accepted"
	if denied > 0 {
		msg += ", " + strconv.Itoa(denied) + " denied"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"action":   "load",
		"message":  msg,
		"state":    h.computeHealthStatus(r.Context()).status,
		"accepted": accepted,
		"denied":   denied,
	})
}

// postTestError records simulated failures against a component (default: weather).
func (h *Handler) postTestError(w http.ResponseWriter, r *http.Request) {
	body := readTestCount(r, 1)
	component := body.Component
	switch component {
	case traffic.ComponentAPI, traffic.ComponentWeather, traffic.ComponentGeocoder, traffic.ComponentAdvisor:
	case "":
		component = traffic.ComponentWeather
	default:
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "unknown component: "+component)
		return
	}
	for i := 0; i < body.Count; i++ {
		traffic.Record(component, traffic.Failure)
	}

	window := testWindow
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 {
		window = h.healthConfig.DegradedWindow
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"action":         "error",
		"component":      component,
		"message":        "Recorded " + strconv.Itoa(body.Count) + " errors",
		"state":          h.computeHealthStatus(r.Context()).status,
		"error_rate_pct": int(traffic.Snapshot(component, window).ErrorPct()),
	})
}

// postTestReset clears traffic windows and the shutdown flag.
func (h *Handler) postTestReset(w http.ResponseWriter, r *http.Request) {
	traffic.Reset()
	lifecycle.SetShuttingDown(false)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "reset",
		"message": "All simulated state cleared",
	})
}

func (h *Handler) postTestShutdown(w http.ResponseWriter, r *http.Request) {
	lifecycle.SetShuttingDown(true)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"action":  "shutdown",
		"message": "Shutting-down flag set",
	})
}

package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	RequestTimeout time.Duration
	// SuggestionTimeout bounds POST /api/suggestions, which geocodes, fetches
	// weather and waits on the model in sequence. Zero falls back to
	// RequestTimeout.
	SuggestionTimeout time.Duration
	TestingMode       bool
}

// NewRouter wires every route onto a gorilla/mux router. /health and /metrics sit
// outside the rate limiter; /api routes share traffic accounting, rate limiting and
// the request timeout; /api/suggestions runs under its own longer timeout and
// /api/saved additionally requires X-User-ID.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(h.logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	suggestionTimeout := opts.SuggestionTimeout
	if suggestionTimeout <= 0 {
		suggestionTimeout = opts.RequestTimeout
	}
	suggestions := router.PathPrefix("/api/suggestions").Subrouter()
	suggestions.Use(TrafficMiddleware)
	suggestions.Use(RateLimitMiddleware(h.rateLimiter))
	if suggestionTimeout > 0 {
		suggestions.Use(TimeoutMiddleware(suggestionTimeout))
	}
	suggestions.HandleFunc("/{mode}", h.PostSuggestion).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(TrafficMiddleware)
	api.Use(RateLimitMiddleware(h.rateLimiter))
	if opts.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	api.HandleFunc("/geocode", h.GetGeocode).Methods(http.MethodGet)
	api.HandleFunc("/reverse-geocode", h.GetReverseGeocode).Methods(http.MethodGet)
	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/search", h.GetSearch).Methods(http.MethodGet)
	api.HandleFunc("/locate", h.GetLocate).Methods(http.MethodGet)
	api.HandleFunc("/cities", h.GetCities).Methods(http.MethodGet)
	api.HandleFunc("/report", h.GetReport).Methods(http.MethodGet)

	savedRouter := api.PathPrefix("/saved").Subrouter()
	savedRouter.Use(RequireUser)
	savedRouter.HandleFunc("", h.GetSaved).Methods(http.MethodGet)
	savedRouter.HandleFunc("", h.PostSaved).Methods(http.MethodPost)
	savedRouter.HandleFunc("/{name}", h.DeleteSaved).Methods(http.MethodDelete)

	if opts.TestingMode {
		router.HandleFunc("/test", h.GetTestStatus).Methods(http.MethodGet)
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods(http.MethodPost)
	}
	return router
}

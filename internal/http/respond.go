package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/saved"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/validation"
)

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty: innermost error text
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{validation.ErrLocationEmpty, http.StatusBadRequest, "INVALID_LOCATION", ""},
	{validation.ErrLocationTooShort, http.StatusBadRequest, "INVALID_LOCATION", ""},
	{validation.ErrLocationTooLong, http.StatusBadRequest, "INVALID_LOCATION", ""},
	{validation.ErrLocationInvalidChars, http.StatusBadRequest, "INVALID_LOCATION", ""},
	{validation.ErrInvalidCoordinates, http.StatusBadRequest, "INVALID_COORDINATES", ""},
	{validation.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST", ""},
	{saved.ErrEmptyName, http.StatusBadRequest, "INVALID_LOCATION", ""},
	{upstream.ErrLocationNotFound, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found"},
	{saved.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Location is not saved"},
	{saved.ErrAlreadySaved, http.StatusConflict, "ALREADY_SAVED", "Location is already saved"},
	{saved.ErrLimitReached, http.StatusConflict, "LIMIT_REACHED", "Saved location limit reached"},
	{upstream.ErrMissingAPIKey, http.StatusInternalServerError, "PROVIDER_NOT_CONFIGURED", "Provider API key is not configured"},
	{upstream.ErrInvalidSuggestion, http.StatusBadGateway, "AI_INVALID_RESPONSE", "The AI provider returned an unusable suggestion"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Upstream request timed out"},
}

// writeServiceError maps err to a status and error code. Unknown errors are treated
// as upstream failures. 5xx responses are logged at Warn, the rest at Debug.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Upstream service unavailable"
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, code, message = m.status, m.code, m.message
			if message == "" {
				message = detailMessage(err, m.target)
			}
			break
		}
	}

	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.String("code", code), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("code", code), zap.Error(err))
	}
	writeError(w, r, status, code, message)
}

// detailMessage returns the text of the error that directly wraps target, so
// "invalid coordinates: latitude 91 out of range" survives while outer context
// such as the service operation name is dropped.
func detailMessage(err, target error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if e == target || errors.Unwrap(e) == target {
			return e.Error()
		}
	}
	return target.Error()
}

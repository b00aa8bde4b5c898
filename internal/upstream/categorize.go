package upstream

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout           ErrorCategory = "timeout"
	ErrorCategoryNetwork           ErrorCategory = "network"
	ErrorCategoryMissingAPIKey     ErrorCategory = "missing_api_key"
	ErrorCategoryInvalidAPIKey     ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound  ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited       ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx       ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen       ErrorCategory = "circuit_open"
	ErrorCategoryInvalidSuggestion ErrorCategory = "invalid_suggestion"
	ErrorCategoryParsing           ErrorCategory = "parsing"
	ErrorCategoryUnknown           ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrMissingAPIKey):
		return ErrorCategoryMissingAPIKey
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrInvalidSuggestion):
		return ErrorCategoryInvalidSuggestion
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") || strings.Contains(errStr, "decode") {
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}

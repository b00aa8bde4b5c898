// Package geocode resolves place names to coordinates and back through a
// third-party geocoding provider.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

// Provider names accepted by New.
const (
	ProviderGeoapify = "geoapify"
	ProviderOpenCage = "opencage"
)

// Geocoder is the contract every geocoding provider implements.
type Geocoder interface {
	Forward(ctx context.Context, address string) (models.GeocodedLocation, error)
	Reverse(ctx context.Context, lat, lng float64) (models.GeocodedLocation, error)
	Name() string
}

// Options configure a geocoder. An empty APIKey is accepted; every lookup then
// fails with upstream.ErrMissingAPIKey.
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// New returns the geocoder for provider.
func New(provider string, opts Options) (Geocoder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderGeoapify, "":
		return NewGeoapify(opts), nil
	case ProviderOpenCage:
		return NewOpenCage(opts), nil
	default:
		return nil, fmt.Errorf("unknown geocoding provider %q", provider)
	}
}

type restGeocoder struct {
	provider string
	apiKey   string
	keyParam string
	http     *resty.Client
}

func newRestGeocoder(provider, keyParam, defaultURL string, opts Options) restGeocoder {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := opts.RetryCount
	if retries < 0 {
		retries = 0
	}
	wait := opts.RetryWait
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}

	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", observability.ServiceName+"/"+observability.Version).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(4 * wait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	return restGeocoder{provider: provider, apiKey: opts.APIKey, keyParam: keyParam, http: c}
}

func (g restGeocoder) Name() string {
	return g.provider
}

// get issues one lookup and decodes a 2xx body into out.
func (g restGeocoder) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	if g.apiKey == "" {
		return fmt.Errorf("%s: %w", g.provider, upstream.ErrMissingAPIKey)
	}

	start := time.Now()
	req := g.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam(g.keyParam, g.apiKey).
		ForceContentType("application/json").
		SetResult(out)
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.SetHeader("X-Correlation-ID", corrID)
	}

	resp, err := req.Get(path)
	if err != nil {
		observability.RecordUpstreamCall(g.provider, "error", time.Since(start))
		err = fmt.Errorf("%s request failed: %w", g.provider, err)
		observability.UpstreamErrorsTotal.WithLabelValues(g.provider, string(upstream.CategorizeError(err))).Inc()
		return err
	}
	if n := resp.Request.Attempt - 1; n > 0 {
		observability.UpstreamRetriesTotal.WithLabelValues(g.provider).Add(float64(n))
	}
	observability.RecordUpstreamCall(g.provider, upstream.StatusLabel(resp.StatusCode()), time.Since(start))

	if sentinel := upstream.ErrorForStatus(resp.StatusCode()); sentinel != nil {
		err := fmt.Errorf("%s: %w: HTTP %d", g.provider, sentinel, resp.StatusCode())
		observability.UpstreamErrorsTotal.WithLabelValues(g.provider, string(upstream.CategorizeError(err))).Inc()
		return err
	}
	return nil
}

func notFound(provider, query string) error {
	return fmt.Errorf("%s: %w: %q", provider, upstream.ErrLocationNotFound, query)
}

func coordQuery(lat, lng float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

// Provider names accepted by New.
const (
	ProviderOpenWeather    = "openweather"
	ProviderOneCall        = "onecall"
	ProviderVisualCrossing = "visualcrossing"
)

// Query identifies the place to fetch weather for. LocationName and
// TimezoneName come from the geocoder and are optional.
type Query struct {
	Lat          float64
	Lon          float64
	LocationName string
	TimezoneName string
}

// WeatherClient fetches weather from one provider and normalizes it.
type WeatherClient interface {
	GetWeather(ctx context.Context, q Query) (models.WeatherData, error)
	ValidateAPIKey(ctx context.Context) error
	Name() string
}

// Options configure a provider client. Zero values fall back to defaults.
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Backoff    upstream.Backoff
	Breaker    *circuitbreaker.CircuitBreaker
	HTTPClient *http.Client
}

// New returns the client for provider.
func New(provider string, opts Options) (WeatherClient, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenWeather, "":
		return NewOpenWeatherClient(opts)
	case ProviderOneCall:
		return NewOneCallClient(opts)
	case ProviderVisualCrossing:
		return NewVisualCrossingClient(opts)
	default:
		return nil, fmt.Errorf("unknown weather provider %q", provider)
	}
}

// validationTTL bounds how often ValidateAPIKey hits the provider.
const validationTTL = 5 * time.Minute

// validationLat/Lon is central London, used for API key checks.
const (
	validationLat = 51.5074
	validationLon = -0.1278
)

type baseClient struct {
	provider string
	apiKey   string
	keyParam string
	baseURL  string
	timeout  time.Duration
	backoff  upstream.Backoff
	breaker  *circuitbreaker.CircuitBreaker
	client   *http.Client
	now      func() time.Time

	validMu     sync.Mutex
	validatedAt time.Time
}

func newBaseClient(provider, keyParam, defaultURL string, opts Options) (*baseClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, upstream.ErrMissingAPIKey)
	}
	if len(opts.APIKey) < 10 {
		return nil, fmt.Errorf("%w: %s API key appears invalid (too short)", upstream.ErrInvalidAPIKey, provider)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid %s API URL: %w", provider, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	backoff := opts.Backoff
	if backoff.Attempts <= 0 {
		backoff = upstream.DefaultBackoff
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &baseClient{
		provider: provider,
		apiKey:   opts.APIKey,
		keyParam: keyParam,
		baseURL:  baseURL,
		timeout:  timeout,
		backoff:  backoff,
		breaker:  opts.Breaker,
		client:   httpClient,
		now:      time.Now,
	}, nil
}

func (c *baseClient) Name() string {
	return c.provider
}

// getJSON fetches baseURL+path and decodes the body into out, retrying
// retryable failures behind the circuit breaker.
func (c *baseClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	_, err := upstream.Retry(ctx, c.backoff,
		func(int) { observability.UpstreamRetriesTotal.WithLabelValues(c.provider).Inc() },
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.breaker.Call(ctx, func(ctx context.Context) error {
				return c.callAPI(ctx, path, params, out)
			})
		})
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(c.provider, string(upstream.CategorizeError(err))).Inc()
		return err
	}
	return nil
}

func (c *baseClient) callAPI(ctx context.Context, path string, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, params)
	if err != nil {
		observability.RecordUpstreamCall(c.provider, "error", time.Since(start))
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordUpstreamCall(c.provider, "error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.RecordUpstreamCall(c.provider, upstream.StatusLabel(resp.StatusCode), time.Since(start))

	if sentinel := upstream.ErrorForStatus(resp.StatusCode); sentinel != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %w: HTTP %d", c.provider, sentinel, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", c.provider, err)
	}
	return nil
}

func (c *baseClient) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set(c.keyParam, c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// validate performs one unretried call and remembers a success for validationTTL.
func (c *baseClient) validate(ctx context.Context, path string, params url.Values) error {
	c.validMu.Lock()
	fresh := !c.validatedAt.IsZero() && c.now().Sub(c.validatedAt) < validationTTL
	c.validMu.Unlock()
	if fresh {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var discard json.RawMessage
	if err := c.callAPI(ctx, path, params, &discard); err != nil {
		if errors.Is(err, upstream.ErrInvalidAPIKey) {
			return fmt.Errorf("%w: %s API key is invalid or not activated", upstream.ErrInvalidAPIKey, c.provider)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	c.validMu.Lock()
	c.validatedAt = c.now()
	c.validMu.Unlock()
	return nil
}

func coordParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))
	params.Set("units", "metric")
	return params
}

func formatCoord(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}

func locationName(q Query, fallback string) string {
	if name := strings.TrimSpace(q.LocationName); name != "" {
		return name
	}
	if fallback != "" {
		return fallback
	}
	return fmt.Sprintf("%.4f, %.4f", q.Lat, q.Lon)
}

func timezoneName(q Query, providerName string, loc *time.Location) string {
	if q.TimezoneName != "" && q.TimezoneName != "Unknown" {
		return q.TimezoneName
	}
	if providerName != "" {
		return providerName
	}
	return loc.String()
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/advisor"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/cache"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/client"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/geocode"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/traffic"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/validation"
)

// DefaultLocation is searched when the dashboard sends an empty query.
const DefaultLocation = "Visakhapatnam, India"

// Location name bounds shared with the HTTP layer.
const (
	MinLocationLength = 1
	MaxLocationLength = 200
)

// Config tunes the dashboard service. Zero durations disable the matching feature.
type Config struct {
	CacheTTL        time.Duration
	StaleTTL        time.Duration // maximum age for stale fallback (0 = disabled)
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
	DefaultLocation string
}

// DashboardService orchestrates geocoding, weather retrieval (cache-aside with
// coalescing and stale fallback) and start-time suggestions.
type DashboardService struct {
	weather         client.WeatherClient
	geocoder        geocode.Geocoder
	advisor         advisor.Advisor
	cache           cache.Cache
	cfg             Config
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil if disabled
}

// New creates a DashboardService. geocoder and adv may be nil; the matching
// operations then fail with upstream.ErrMissingAPIKey.
func New(weather client.WeatherClient, geocoder geocode.Geocoder, adv advisor.Advisor, c cache.Cache, cfg Config) *DashboardService {
	var coalescer *requestCoalescer
	if cfg.CoalesceEnabled && cfg.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(cfg.CoalesceTimeout)
	}
	if strings.TrimSpace(cfg.DefaultLocation) == "" {
		cfg.DefaultLocation = DefaultLocation
	}
	return &DashboardService{
		weather:         weather,
		geocoder:        geocoder,
		advisor:         adv,
		cache:           c,
		cfg:             cfg,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// Provider returns the configured weather provider name.
func (s *DashboardService) Provider() string {
	return s.weather.Name()
}

// Geocode resolves a free-text address to coordinates.
func (s *DashboardService) Geocode(ctx context.Context, address string) (models.GeocodedLocation, error) {
	address, err := validation.ValidateLocation(address, MinLocationLength, MaxLocationLength)
	if err != nil {
		return models.GeocodedLocation{}, err
	}
	if s.geocoder == nil {
		return models.GeocodedLocation{}, fmt.Errorf("geocoder: %w", upstream.ErrMissingAPIKey)
	}
	loc, err := s.geocoder.Forward(ctx, address)
	recordOutcome(traffic.ComponentGeocoder, err)
	if err != nil {
		return models.GeocodedLocation{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	return loc, nil
}

// ReverseGeocode resolves coordinates to a place name and timezone.
func (s *DashboardService) ReverseGeocode(ctx context.Context, lat, lng float64) (models.GeocodedLocation, error) {
	if err := validation.ValidateCoordinates(lat, lng); err != nil {
		return models.GeocodedLocation{}, err
	}
	if s.geocoder == nil {
		return models.GeocodedLocation{}, fmt.Errorf("geocoder: %w", upstream.ErrMissingAPIKey)
	}
	loc, err := s.geocoder.Reverse(ctx, lat, lng)
	recordOutcome(traffic.ComponentGeocoder, err)
	if err != nil {
		return models.GeocodedLocation{}, fmt.Errorf("reverse geocode %.4f,%.4f: %w", lat, lng, err)
	}
	return loc, nil
}

// Search geocodes query (DefaultLocation when blank) and fetches its weather.
func (s *DashboardService) Search(ctx context.Context, query string) (models.LocationWeather, error) {
	name := strings.TrimSpace(query)
	if name == "" {
		name = s.cfg.DefaultLocation
	}
	loc, err := s.Geocode(ctx, name)
	if err != nil {
		return models.LocationWeather{}, err
	}
	if loc.Name == "" {
		loc.Name = name
	}
	return s.weatherFor(ctx, loc)
}

// Locate handles a globe click: the clicked coordinates are kept and named by
// the reverse geocode. Coordinates with no reverse result (open ocean) are
// named by their coordinates.
func (s *DashboardService) Locate(ctx context.Context, lat, lng float64) (models.LocationWeather, error) {
	loc, err := s.resolveCoordinates(ctx, lat, lng, "")
	if err != nil {
		return models.LocationWeather{}, err
	}
	return s.weatherFor(ctx, loc)
}

// WarmLocation fetches weather for name so the next dashboard request is served from cache.
func (s *DashboardService) WarmLocation(ctx context.Context, name string) error {
	_, err := s.Search(ctx, name)
	return err
}

func (s *DashboardService) resolveCoordinates(ctx context.Context, lat, lng float64, name string) (models.GeocodedLocation, error) {
	if err := validation.ValidateCoordinates(lat, lng); err != nil {
		return models.GeocodedLocation{}, err
	}
	loc := models.GeocodedLocation{Lat: lat, Lng: lng, Name: strings.TrimSpace(name)}
	rev, err := s.ReverseGeocode(ctx, lat, lng)
	switch {
	case err == nil:
		loc.TimezoneName = rev.TimezoneName
		if loc.Name == "" {
			loc.Name = rev.Name
		}
	case errors.Is(err, upstream.ErrLocationNotFound):
		observability.LoggerFromContext(ctx).Debug("no reverse geocode result, naming by coordinates",
			zap.Float64("lat", lat), zap.Float64("lng", lng))
	default:
		return models.GeocodedLocation{}, err
	}
	if loc.Name == "" {
		loc.Name = fmt.Sprintf("%.4f, %.4f", lat, lng)
	}
	return loc, nil
}

func (s *DashboardService) weatherFor(ctx context.Context, loc models.GeocodedLocation) (models.LocationWeather, error) {
	data, err := s.GetWeather(ctx, client.Query{
		Lat:          loc.Lat,
		Lon:          loc.Lng,
		LocationName: loc.Name,
		TimezoneName: loc.TimezoneName,
	})
	if err != nil {
		return models.LocationWeather{}, err
	}
	return models.LocationWeather{Location: loc, Weather: data}, nil
}

// GetWeather retrieves weather for q using cache-aside. Concurrent misses for the
// same key share one upstream call when coalescing is enabled. When the provider
// fails, an entry up to StaleTTL old is served with Stale set.
func (s *DashboardService) GetWeather(ctx context.Context, q client.Query) (models.WeatherData, error) {
	if err := validation.ValidateCoordinates(q.Lat, q.Lon); err != nil {
		return models.WeatherData{}, err
	}
	key := cache.Key(s.weather.Name(), q.Lat, q.Lon, q.TimezoneName)
	start := time.Now()
	logger := observability.LoggerFromContext(ctx).With(zap.String("cache_key", key))
	observability.RecordWeatherQuery(q.LocationName)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.Error(err))
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		logger.Debug("weather served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return relabel(cached, q), nil
	}
	observability.CacheMissesTotal.WithLabelValues("weather").Inc()

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.Resolve(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
		observability.CacheStampedeConcurrency.Observe(float64(concurrentMisses))
	}
	logger.Debug("cache miss, fetching upstream", zap.String("provider", s.weather.Name()))

	var data models.WeatherData
	var upstreamErr error
	if s.coalescer != nil {
		coalesceStart := time.Now()
		var shared bool
		data, shared, upstreamErr = s.coalescer.GetOrDo(ctx, key, func(ctx context.Context) (models.WeatherData, error) {
			return s.fetch(ctx, q)
		})
		if upstreamErr == nil && shared {
			observability.RequestCoalescingHitsTotal.Inc()
			observability.RequestCoalescingWaitSeconds.Observe(time.Since(coalesceStart).Seconds())
		}
	} else {
		data, upstreamErr = s.fetch(ctx, q)
	}
	if upstreamErr != nil {
		if stale, ok := s.staleFallback(ctx, key, logger); ok {
			return relabel(stale, q), nil
		}
		return models.WeatherData{}, fmt.Errorf("fetch weather for %s: %w", key, upstreamErr)
	}

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.Error(setErr))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	logger.Debug("weather served", zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return relabel(data, q), nil
}

func (s *DashboardService) fetch(ctx context.Context, q client.Query) (models.WeatherData, error) {
	data, err := s.weather.GetWeather(ctx, q)
	recordOutcome(traffic.ComponentWeather, err)
	return data, err
}

func (s *DashboardService) staleFallback(ctx context.Context, key string, logger *zap.Logger) (models.WeatherData, bool) {
	if s.cfg.StaleTTL <= 0 {
		return models.WeatherData{}, false
	}
	stale, storedAt, ok, err := s.cache.GetStale(ctx, key, s.cfg.StaleTTL)
	if err != nil || !ok {
		return models.WeatherData{}, false
	}
	age := time.Since(storedAt)
	observability.StaleCacheServesTotal.Inc()
	observability.StaleCacheAgeSeconds.Observe(age.Seconds())
	logger.Info("serving stale cache", zap.Duration("age", age))
	stale.Stale = true
	return stale, true
}

// relabel applies the caller's place name to data. Cache keys round coordinates,
// so a cached entry may have been fetched under a neighbouring name.
func relabel(data models.WeatherData, q client.Query) models.WeatherData {
	if name := strings.TrimSpace(q.LocationName); name != "" {
		data.Current.LocationName = name
	}
	return data
}

// SuggestStartTime asks the advisor for the best start time inside the request window.
func (s *DashboardService) SuggestStartTime(ctx context.Context, req models.SuggestionRequest) (models.Suggestion, error) {
	logger := observability.LoggerFromContext(ctx)
	sugg, err := s.suggest(ctx, req)
	result := "success"
	if err != nil {
		result = string(upstream.CategorizeError(err))
		if errors.Is(err, validation.ErrInvalidRequest) {
			result = "invalid_request"
		}
		logger.Debug("suggestion failed", zap.String("mode", req.Mode), zap.Error(err))
	}
	observability.SuggestionsTotal.WithLabelValues(req.Mode, result).Inc()
	return sugg, err
}

func (s *DashboardService) suggest(ctx context.Context, req models.SuggestionRequest) (models.Suggestion, error) {
	if err := validation.Struct(req); err != nil {
		return models.Suggestion{}, err
	}
	if s.advisor == nil {
		return models.Suggestion{}, fmt.Errorf("advisor: %w", upstream.ErrMissingAPIKey)
	}

	var loc models.GeocodedLocation
	var err error
	if req.Lat != nil && req.Lng != nil {
		loc, err = s.resolveCoordinates(ctx, *req.Lat, *req.Lng, req.Location)
	} else {
		loc, err = s.Geocode(ctx, req.Location)
		if err == nil && loc.Name == "" {
			loc.Name = strings.TrimSpace(req.Location)
		}
	}
	if err != nil {
		return models.Suggestion{}, err
	}

	lw, err := s.weatherFor(ctx, loc)
	if err != nil {
		return models.Suggestion{}, err
	}

	sugg, err := s.advisor.Suggest(ctx, advisor.Request{
		Mode:                   req.Mode,
		Location:               loc.Name,
		EarliestTime:           req.EarliestTime,
		LatestTime:             req.LatestTime,
		CommuteDurationMinutes: req.CommuteDurationMinutes,
		WeatherSummary:         advisor.SummarizeWindow(lw.Weather, req.EarliestTime, req.LatestTime),
		Zone:                   normalize.Location(lw.Weather.Current.LocationTimezoneName, lw.Weather.Current.TimezoneOffsetSeconds),
	})
	recordOutcome(traffic.ComponentAdvisor, err)
	if err != nil {
		return models.Suggestion{}, fmt.Errorf("suggest %s start time: %w", req.Mode, err)
	}
	return sugg, nil
}

// recordOutcome feeds the traffic windows that drive degraded health. Lookups
// that legitimately match nothing, and callers that gave up, are not upstream failures.
func recordOutcome(component string, err error) {
	switch {
	case err == nil:
		traffic.Record(component, traffic.Success)
	case errors.Is(err, upstream.ErrLocationNotFound), errors.Is(err, context.Canceled):
		return
	default:
		traffic.Record(component, traffic.Failure)
	}
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

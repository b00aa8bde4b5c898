//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/cache"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/client"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/geocode"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/service"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	WeatherProvider  string
	WeatherAPIKey    string
	GeocoderProvider string
	GeocoderAPIKey   string // optional; geocoding tests skip without it
	CacheBackend     string // "in_memory" or "memcached"
	MemcachedAddr    string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		WeatherProvider:  os.Getenv("WEATHER_PROVIDER"),
		WeatherAPIKey:    apiKey,
		GeocoderProvider: os.Getenv("GEOCODER_PROVIDER"),
		GeocoderAPIKey:   os.Getenv("GEOCODER_API_KEY"),
		CacheBackend:     os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr:    memcachedAddr,
	}
}

// RequireGeocoder skips the test when no geocoder key is configured.
func RequireGeocoder(t *testing.T, cfg IntegrationTestConfig) {
	t.Helper()
	if cfg.GeocoderAPIKey == "" {
		t.Skip("GEOCODER_API_KEY not set, skipping geocoding integration test")
	}
}

// SetupIntegrationClient creates a live weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	t.Helper()
	c, err := client.New(cfg.WeatherProvider, client.Options{
		APIKey:  cfg.WeatherAPIKey,
		Timeout: 10 * time.Second,
		Backoff: upstream.Backoff{Attempts: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second},
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

// SetupIntegrationService wires a DashboardService over live providers. No
// advisor is configured. Returns the service, its weather client, the cache
// and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.DashboardService, client.WeatherClient, cache.Cache, func()) {
	t.Helper()
	weatherClient := SetupIntegrationClient(t, cfg)

	geocoder, err := geocode.New(cfg.GeocoderProvider, geocode.Options{
		APIKey:  cfg.GeocoderAPIKey,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("geocode.New() error = %v", err)
	}

	var cacheSvc cache.Cache
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, time.Hour)
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}
	if cacheSvc == nil {
		cacheSvc = cache.NewInMemoryCache(time.Hour)
	}

	dashboard := service.New(weatherClient, geocoder, nil, cacheSvc, service.Config{
		CacheTTL:        5 * time.Minute,
		StaleTTL:        time.Hour,
		CoalesceEnabled: true,
		CoalesceTimeout: 15 * time.Second,
	})
	return dashboard, weatherClient, cacheSvc, cleanup
}

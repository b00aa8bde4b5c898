package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backends accepted for cache.backend and saved.backend.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	WeatherProvider   string
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	GeocoderProvider   string
	GeocoderAPIKey     string
	GeocoderAPIURL     string
	GeocoderTimeout    time.Duration
	GeocoderRetryCount int
	GeocoderRetryWait  time.Duration

	AIAPIKey          string
	AIBaseURL         string
	AIModel           string
	AITimeout         time.Duration
	AIBreakerFailures int
	AIBreakerTimeout  time.Duration

	DefaultLocation string

	RequestTimeout    time.Duration
	SuggestionTimeout time.Duration
	CacheTTL          time.Duration
	StaleCacheTTL     time.Duration
	CacheBackend      string
	SavedBackend      string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	WarmCache    bool
	WarmInterval time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int

	TrackedLocations []string
}

// Memcached returns the memcached server list.
func (c *Config) Memcached() []string {
	var addrs []string
	for _, a := range strings.Split(c.MemcachedAddrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Weather struct {
		Provider string `yaml:"provider"`
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Geocoder struct {
		Provider   string `yaml:"provider"`
		URL        string `yaml:"url"`
		Timeout    string `yaml:"timeout"`
		RetryCount *int   `yaml:"retry_count"`
		RetryWait  string `yaml:"retry_wait"`
	} `yaml:"geocoder"`

	AI struct {
		BaseURL         string `yaml:"base_url"`
		Model           string `yaml:"model"`
		Timeout         string `yaml:"timeout"`
		BreakerFailures int    `yaml:"breaker_failures"`
		BreakerTimeout  string `yaml:"breaker_timeout"`
	} `yaml:"ai"`

	Dashboard struct {
		DefaultLocation string `yaml:"default_location"`
	} `yaml:"dashboard"`

	Request struct {
		Timeout           string `yaml:"timeout"`
		SuggestionTimeout string `yaml:"suggestion_timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		StaleTTL  string `yaml:"stale_ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Coalesce struct {
			Enabled *bool  `yaml:"enabled"`
			Timeout string `yaml:"timeout"`
		} `yaml:"coalesce"`
		Warm struct {
			Enabled  bool   `yaml:"enabled"`
			Interval string `yaml:"interval"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Saved struct {
		Backend string `yaml:"backend"`
	} `yaml:"saved"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey  string `yaml:"weather_api_key"`
	GeocoderAPIKey string `yaml:"geocoder_api_key"`
	AIAPIKey       string `yaml:"ai_api_key"`
}

// Load reads .env (if present), then config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. Env vars override keys and backends. Only the weather key
// is required; a missing geocoder or AI key fails the matching requests instead.
// Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherProvider = strings.ToLower(firstNonEmpty(os.Getenv("WEATHER_PROVIDER"), fc.Weather.Provider, "openweather"))
	cfg.WeatherAPIURL = strings.TrimSpace(fc.Weather.URL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.Weather.Timeout, 5*time.Second)

	cfg.GeocoderAPIKey = firstNonEmpty(os.Getenv("GEOCODER_API_KEY"), sec.GeocoderAPIKey)
	cfg.GeocoderProvider = strings.ToLower(firstNonEmpty(os.Getenv("GEOCODER_PROVIDER"), fc.Geocoder.Provider, "geoapify"))
	cfg.GeocoderAPIURL = strings.TrimSpace(fc.Geocoder.URL)
	cfg.GeocoderTimeout = parseDuration(fc.Geocoder.Timeout, 5*time.Second)
	cfg.GeocoderRetryCount = 2
	if fc.Geocoder.RetryCount != nil && *fc.Geocoder.RetryCount >= 0 {
		cfg.GeocoderRetryCount = *fc.Geocoder.RetryCount
	}
	cfg.GeocoderRetryWait = parseDuration(fc.Geocoder.RetryWait, 200*time.Millisecond)

	cfg.AIAPIKey = firstNonEmpty(os.Getenv("AI_API_KEY"), sec.AIAPIKey)
	cfg.AIBaseURL = strings.TrimSpace(fc.AI.BaseURL)
	cfg.AIModel = strings.TrimSpace(fc.AI.Model)
	cfg.AITimeout = parseDuration(fc.AI.Timeout, 20*time.Second)
	cfg.AIBreakerFailures = fc.AI.BreakerFailures
	if cfg.AIBreakerFailures <= 0 {
		cfg.AIBreakerFailures = 5
	}
	cfg.AIBreakerTimeout = parseDuration(fc.AI.BreakerTimeout, 30*time.Second)

	cfg.DefaultLocation = firstNonEmpty(fc.Dashboard.DefaultLocation, "Visakhapatnam, India")

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.SuggestionTimeout = parseDuration(fc.Request.SuggestionTimeout, 0)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.StaleCacheTTL = parseDurationOrZero(fc.Cache.StaleTTL, time.Hour)
	if cfg.StaleCacheTTL < 0 {
		cfg.StaleCacheTTL = 0
	}
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendInMemory))
	cfg.SavedBackend = strings.ToLower(firstNonEmpty(os.Getenv("SAVED_BACKEND"), fc.Saved.Backend, cfg.CacheBackend))

	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CoalesceEnabled = true
	if fc.Cache.Coalesce.Enabled != nil {
		cfg.CoalesceEnabled = *fc.Cache.Coalesce.Enabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Cache.Coalesce.Timeout, 10*time.Second)
	cfg.WarmCache = fc.Cache.Warm.Enabled
	cfg.WarmInterval = parseDuration(fc.Cache.Warm.Interval, 15*time.Minute)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 1
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 20
	}
	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// TrafficRetention is the longest health window, which bounds how long request
// outcomes must be kept.
func (c *Config) TrafficRetention() time.Duration {
	longest := c.OverloadWindow
	for _, w := range []time.Duration{c.IdleWindow, c.DegradedWindow} {
		if w > longest {
			longest = w
		}
	}
	return longest
}

// validate performs post-load validation. RequestTimeout is raised above the
// weather timeout, and SuggestionTimeout above the geocode, weather and AI
// calls a suggestion makes in sequence.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if floor := cfg.GeocoderTimeout + cfg.WeatherAPITimeout + cfg.AITimeout; cfg.SuggestionTimeout <= floor {
		cfg.SuggestionTimeout = floor + time.Second
	}
	switch cfg.WeatherProvider {
	case "openweather", "onecall", "visualcrossing":
	default:
		return fmt.Errorf("weather_api.provider must be openweather, onecall or visualcrossing, got %q", cfg.WeatherProvider)
	}
	switch cfg.GeocoderProvider {
	case "geoapify", "opencage":
	default:
		return fmt.Errorf("geocoder.provider must be geoapify or opencage, got %q", cfg.GeocoderProvider)
	}
	for name, backend := range map[string]string{"cache.backend": cfg.CacheBackend, "saved.backend": cfg.SavedBackend} {
		switch backend {
		case BackendInMemory, BackendMemcached:
		default:
			return fmt.Errorf("%s must be in_memory or memcached, got %q", name, backend)
		}
	}
	if (cfg.CacheBackend == BackendMemcached || cfg.SavedBackend == BackendMemcached) && len(cfg.Memcached()) == 0 {
		return fmt.Errorf("memcached backend needs at least one address")
	}
	return nil
}

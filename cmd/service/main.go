package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/advisor"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/cache"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/client"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/config"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/geocode"
	httphandler "github.com/kjstillabower/sprint-weather-dashboard/internal/http"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/saved"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/service"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/traffic"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = newWeatherBreaker(cfg)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	weatherClient, err := client.New(cfg.WeatherProvider, client.Options{
		APIKey:  cfg.WeatherAPIKey,
		BaseURL: cfg.WeatherAPIURL,
		Timeout: cfg.WeatherAPITimeout,
		Backoff: upstream.Backoff{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
		},
		Breaker: breaker,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	geocoder, err := geocode.New(cfg.GeocoderProvider, geocode.Options{
		APIKey:     cfg.GeocoderAPIKey,
		BaseURL:    cfg.GeocoderAPIURL,
		Timeout:    cfg.GeocoderTimeout,
		RetryCount: cfg.GeocoderRetryCount,
		RetryWait:  cfg.GeocoderRetryWait,
	})
	if err != nil {
		logger.Fatal("geocoder", zap.Error(err))
	}
	if cfg.GeocoderAPIKey == "" {
		logger.Warn("geocoder API key not set; geocoding requests will fail")
	}

	// adv stays a nil interface when no AI key is configured.
	var adv advisor.Advisor
	var aiAdvisor *advisor.OpenAIAdvisor
	if cfg.AIAPIKey != "" {
		aiAdvisor = advisor.NewOpenAIAdvisor(advisor.Options{
			APIKey:          cfg.AIAPIKey,
			BaseURL:         cfg.AIBaseURL,
			Model:           cfg.AIModel,
			Timeout:         cfg.AITimeout,
			BreakerFailures: uint32(cfg.AIBreakerFailures),
			BreakerTimeout:  cfg.AIBreakerTimeout,
		})
		adv = aiAdvisor
	} else {
		logger.Warn("AI API key not set; suggestions disabled")
	}

	cacheSvc, memcachedCache := newCache(cfg, logger)
	store, memcachedStore := newSavedStore(cfg, logger)

	dashboard := service.New(weatherClient, geocoder, adv, cacheSvc, service.Config{
		CacheTTL:        cfg.CacheTTL,
		StaleTTL:        cfg.StaleCacheTTL,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
		DefaultLocation: cfg.DefaultLocation,
	})

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		RateLimitBurst:         cfg.RateLimitBurst,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		GeocoderConfigured:     cfg.GeocoderAPIKey != "",
		AdvisorConfigured:      aiAdvisor != nil,
	}
	if aiAdvisor != nil {
		healthConfig.AdvisorBreakerState = aiAdvisor.BreakerState
	}
	if memcachedCache != nil {
		healthConfig.CachePing = memcachedCache.Ping
	}
	if memcachedStore != nil {
		healthConfig.SavedPing = memcachedStore.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(dashboard, weatherClient, store, healthConfig, logger, limiter)

	traffic.SetRetention(cfg.TrafficRetention())
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	var warmer *cache.CacheWarmer
	if cfg.WarmCache {
		warmer = cache.NewCacheWarmer(dashboard, logger,
			cache.StaticLocations(cfg.TrackedLocations),
			saved.AllLocations(store))
		if err := warmer.Start(cfg.WarmInterval); err != nil {
			logger.Error("cache warming not started", zap.Error(err))
			warmer = nil
		}
	}

	if cfg.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
	}
	router := httphandler.NewRouter(handler, httphandler.RouterOptions{
		RequestTimeout:    cfg.RequestTimeout,
		SuggestionTimeout: cfg.SuggestionTimeout,
		TestingMode:       cfg.TestingMode,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout(cfg),
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("weather_provider", weatherClient.Name()),
			zap.String("geocoder_provider", geocoder.Name()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.MarkStarted(time.Now())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	if warmer != nil {
		warmer.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.ShutdownInFlightRequests.Set(float64(inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcachedCache != nil {
		if err := memcachedCache.Close(); err != nil {
			logger.Error("memcached cache close", zap.Error(err))
		}
	}
	if memcachedStore != nil {
		if err := memcachedStore.Close(); err != nil {
			logger.Error("memcached saved store close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// writeTimeout leaves headroom past the longest handler deadline.
func writeTimeout(cfg *config.Config) time.Duration {
	longest := cfg.RequestTimeout
	if cfg.SuggestionTimeout > longest {
		longest = cfg.SuggestionTimeout
	}
	return longest + 5*time.Second
}

// newWeatherBreaker builds the weather provider breaker and seeds its state gauge.
func newWeatherBreaker(cfg *config.Config) *circuitbreaker.CircuitBreaker {
	const component = "weather_api"
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(component).Set(float64(circuitbreaker.StateClosed))
	return cb
}

// newCache returns the configured weather cache. The memcached value is non-nil
// only for the memcached backend so main can ping and close it.
func newCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, *cache.MemcachedCache) {
	if cfg.CacheBackend == config.BackendMemcached {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc
	}
	logger.Info("cache backend: in_memory")
	return cache.NewInMemoryCache(cfg.StaleCacheTTL), nil
}

// newSavedStore returns the configured saved-location store, following the same
// convention as newCache.
func newSavedStore(cfg *config.Config, logger *zap.Logger) (saved.Store, *saved.MemcachedStore) {
	if cfg.SavedBackend == config.BackendMemcached {
		logger.Info("saved backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		ms := saved.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		return ms, ms
	}
	logger.Info("saved backend: in_memory")
	return saved.NewMemoryStore(), nil
}

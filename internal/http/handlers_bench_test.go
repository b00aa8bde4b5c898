package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/cache"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/saved"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/service"
)

// setupBenchmarkRouter builds the full router over mocks. Traffic windows are
// global, so benchmarks that record many outcomes reset them when done.
func setupBenchmarkRouter(b *testing.B, limiter *rate.Limiter) *mux.Router {
	b.Helper()
	weather := &mockWeatherClient{weather: fixtureWeather()}
	dashboard := service.New(weather, fixtureGeocoder(), &mockAdvisor{}, cache.NewInMemoryCache(time.Hour), service.Config{
		CacheTTL: time.Hour,
		StaleTTL: time.Hour,
	})
	handler := NewHandler(dashboard, weather, saved.NewMemoryStore(), baseHealthConfig(), zap.NewNop(), limiter)
	return NewRouter(handler, RouterOptions{RequestTimeout: 5 * time.Second})
}

func BenchmarkHandler_GetWeather_CacheHit(b *testing.B) {
	router := setupBenchmarkRouter(b, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/weather?lat=17.6868&lng=83.2185", nil))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/weather?lat=17.6868&lng=83.2185", nil))
	}
}

func BenchmarkHandler_GetSearch(b *testing.B) {
	router := setupBenchmarkRouter(b, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/search?q=London", nil))
	}
}

func BenchmarkHandler_GetCities(b *testing.B) {
	router := setupBenchmarkRouter(b, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/cities?q=san", nil))
	}
}

func BenchmarkHandler_GetReport(b *testing.B) {
	router := setupBenchmarkRouter(b, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/report?q=London", nil))
	}
}

func BenchmarkHandler_GetHealth(b *testing.B) {
	router := setupBenchmarkRouter(b, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))
	}
}

func BenchmarkHandler_RateLimited(b *testing.B) {
	router := setupBenchmarkRouter(b, rate.NewLimiter(rate.Every(time.Hour), 1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/cities?q=lon", nil))
	}
}

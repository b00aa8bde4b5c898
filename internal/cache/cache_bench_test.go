package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

// createTestWeatherData creates a day of forecast data for benchmarks.
func createTestWeatherData(location string) models.WeatherData {
	data := models.WeatherData{
		Current: models.CurrentWeather{
			LocationName: location,
			Temperature:  15.5,
			Description:  "Clear Sky",
			Humidity:     65,
			WindSpeed:    10.2,
			Timestamp:    time.Now().UnixMilli(),
		},
		Provider:  "openweather",
		FetchedAt: time.Now(),
	}
	for i := 0; i < 8; i++ {
		data.Hourly = append(data.Hourly, models.HourlyForecast{Time: time.Now().Add(time.Duration(i) * 3 * time.Hour).UnixMilli(), Temperature: 15})
	}
	for i := 0; i < 5; i++ {
		data.Daily = append(data.Daily, models.DailyForecast{Date: "2024-06-01", DayName: "Sat", MinTemp: 10, MaxTemp: 20})
	}
	return data
}

// BenchmarkInMemoryCache_Get_Hit benchmarks cache Get operation on cache hit.
func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	cache := NewInMemoryCache(0)
	ctx := context.Background()
	_ = cache.Set(ctx, "openweather:47.61,-122.33", createTestWeatherData("Seattle"), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, "openweather:47.61,-122.33")
	}
}

// BenchmarkInMemoryCache_Set benchmarks cache Set operation.
func BenchmarkInMemoryCache_Set(b *testing.B) {
	cache := NewInMemoryCache(0)
	ctx := context.Background()
	testData := createTestWeatherData("Seattle")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.Set(ctx, "openweather:47.61,-122.33", testData, 5*time.Minute)
	}
}

// BenchmarkInMemoryCache_Concurrent benchmarks parallel reads across keys.
func BenchmarkInMemoryCache_Concurrent(b *testing.B) {
	cache := NewInMemoryCache(0)
	ctx := context.Background()
	keys := make([]string, 16)
	for i := range keys {
		keys[i] = Key("openweather", float64(i), float64(i), "")
		_ = cache.Set(ctx, keys[i], createTestWeatherData(fmt.Sprint(i)), 5*time.Minute)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = cache.Get(ctx, keys[i%len(keys)])
			i++
		}
	})
}

// BenchmarkMemcachedCache_Get_Hit benchmarks Memcached Get on cache hit.
// Requires: Memcached running (skip if unavailable).
func BenchmarkMemcachedCache_Get_Hit(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping Memcached benchmark in short mode")
	}

	cache, _ := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2, 0)
	defer cache.Close()
	if err := cache.Ping(); err != nil {
		b.Skipf("Memcached not available: %v", err)
	}

	ctx := context.Background()
	_ = cache.Set(ctx, "bench:seattle", createTestWeatherData("Seattle"), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, "bench:seattle")
	}
}

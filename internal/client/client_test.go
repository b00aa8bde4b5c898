package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

const testAPIKey = "valid-api-key-12345"

func testOptions(url string) Options {
	return Options{
		APIKey:  testAPIKey,
		BaseURL: url,
		Timeout: 2 * time.Second,
		Backoff: upstream.Backoff{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}
}

func writeJSONResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// forecastStart is 2024-06-01 00:00 UTC (05:30 in Asia/Kolkata).
var forecastStart = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func owmCurrentFixture() map[string]interface{} {
	return map[string]interface{}{
		"name":       "Visakhapatnam",
		"dt":         forecastStart.Unix(),
		"timezone":   19800,
		"visibility": 6000,
		"main":       map[string]interface{}{"temp": 31.24, "pressure": 1004, "humidity": 70},
		"wind":       map[string]interface{}{"speed": 4.1, "deg": 225},
		"weather":    []map[string]interface{}{{"description": "scattered clouds", "icon": "03d"}},
	}
}

func owmForecastFixture(n int) map[string]interface{} {
	list := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, map[string]interface{}{
			"dt":      forecastStart.Add(time.Duration(3*i) * time.Hour).Unix(),
			"main":    map[string]interface{}{"temp": 28.0 + float64(i%4), "temp_min": 27.0 + float64(i%4), "temp_max": 29.0 + float64(i%4)},
			"weather": []map[string]interface{}{{"description": "light rain", "icon": "10d"}},
			"pop":     0.35,
		})
	}
	return map[string]interface{}{"list": list, "city": map[string]interface{}{"name": "Visakhapatnam", "timezone": 19800}}
}

func TestNew_Providers(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"openweather", ProviderOpenWeather, false},
		{"", ProviderOpenWeather, false},
		{"OneCall", ProviderOneCall, false},
		{"visualcrossing", ProviderVisualCrossing, false},
		{"darksky", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := New(tt.provider, testOptions("http://example.invalid"))
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if c.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", c.Name(), tt.wantName)
			}
		})
	}
}

func TestNew_APIKeyChecks(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{"empty API key", "", upstream.ErrMissingAPIKey},
		{"too short API key", "short", upstream.ErrInvalidAPIKey},
		{"valid API key", testAPIKey, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions("https://api.test.com")
			opts.APIKey = tt.apiKey
			c, err := NewOpenWeatherClient(opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if c != nil {
					t.Error("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil || c == nil {
				t.Fatalf("NewOpenWeatherClient() = %v, %v", c, err)
			}
		})
	}
}

func TestOpenWeatherClient_GetWeather_Success(t *testing.T) {
	var gotCorrID atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != testAPIKey {
			t.Errorf("appid = %q, want test key", r.URL.Query().Get("appid"))
		}
		if r.URL.Query().Get("units") != "metric" || r.URL.Query().Get("lat") != "17.6868" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		gotCorrID.Store(r.Header.Get("X-Correlation-ID"))
		switch r.URL.Path {
		case "/weather":
			writeJSONResponse(w, owmCurrentFixture())
		case "/forecast":
			writeJSONResponse(w, owmForecastFixture(16))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testOptions(server.URL))
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	ctx := observability.WithRequest(context.Background(), "corr-abc", nil)
	got, err := c.GetWeather(ctx, Query{Lat: 17.6868, Lon: 83.2185, LocationName: "Visakhapatnam, India", TimezoneName: "Asia/Kolkata"})
	if err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}

	if id, _ := gotCorrID.Load().(string); id != "corr-abc" {
		t.Errorf("X-Correlation-ID = %q, want corr-abc", id)
	}
	cur := got.Current
	if cur.LocationName != "Visakhapatnam, India" {
		t.Errorf("LocationName = %q", cur.LocationName)
	}
	if cur.Temperature != 31.2 {
		t.Errorf("Temperature = %v, want 31.2", cur.Temperature)
	}
	if cur.Description != "Scattered Clouds" || cur.Icon != normalize.IconCloud {
		t.Errorf("Description/Icon = %q/%q", cur.Description, cur.Icon)
	}
	if cur.WindDirection != "SW" || cur.Visibility != 6 || cur.Pressure != 1004 {
		t.Errorf("wind/visibility/pressure = %s/%v/%d", cur.WindDirection, cur.Visibility, cur.Pressure)
	}
	if cur.PrecipitationChance != 35 {
		t.Errorf("PrecipitationChance = %d, want 35", cur.PrecipitationChance)
	}
	if cur.LocationTimezoneName != "Asia/Kolkata" || cur.TimezoneOffsetSeconds != 19800 {
		t.Errorf("timezone = %s/%d", cur.LocationTimezoneName, cur.TimezoneOffsetSeconds)
	}
	if cur.Timestamp != forecastStart.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", cur.Timestamp, forecastStart.UnixMilli())
	}
	if len(got.Hourly) != openWeatherHourlySlots {
		t.Errorf("len(Hourly) = %d, want %d", len(got.Hourly), openWeatherHourlySlots)
	}
	if got.Hourly[0].Icon != normalize.IconCloudRain || got.Hourly[0].Description != "Light Rain" {
		t.Errorf("Hourly[0] = %+v", got.Hourly[0])
	}
	// 16 slots from 05:30 IST on 2024-06-01 cover three local dates.
	if len(got.Daily) != 3 || got.Daily[0].Date != "2024-06-01" {
		t.Fatalf("Daily = %+v", got.Daily)
	}
	for _, d := range got.Daily {
		if d.MinTemp > d.MaxTemp || d.PrecipitationChance != 35 {
			t.Errorf("day %s = %+v", d.Date, d)
		}
	}
	if got.Provider != ProviderOpenWeather {
		t.Errorf("Provider = %q", got.Provider)
	}
}

func TestOpenWeatherClient_GetWeather_ErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		wantCalls int32
	}{
		{"401 invalid key", http.StatusUnauthorized, upstream.ErrInvalidAPIKey, 1},
		{"404 not found", http.StatusNotFound, upstream.ErrLocationNotFound, 1},
		{"429 rate limited", http.StatusTooManyRequests, upstream.ErrRateLimited, 3},
		{"503 upstream failure", http.StatusServiceUnavailable, upstream.ErrUpstreamFailure, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/weather" {
					atomic.AddInt32(&calls, 1)
					w.WriteHeader(tt.status)
					return
				}
				writeJSONResponse(w, owmForecastFixture(2))
			}))
			defer server.Close()

			c, _ := NewOpenWeatherClient(testOptions(server.URL))
			_, err := c.GetWeather(context.Background(), Query{Lat: 1, Lon: 2})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetWeather() error = %v, want %v", err, tt.wantErr)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestOpenWeatherClient_GetWeather_RetryThenSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/weather" {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeJSONResponse(w, owmCurrentFixture())
			return
		}
		writeJSONResponse(w, owmForecastFixture(8))
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testOptions(server.URL))
	if _, err := c.GetWeather(context.Background(), Query{Lat: 1, Lon: 2}); err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestOpenWeatherClient_GetWeather_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testOptions(server.URL))
	_, err := c.GetWeather(context.Background(), Query{Lat: 1, Lon: 2})
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("GetWeather() error = %v, want parse error", err)
	}
}

func TestOpenWeatherClient_GetWeather_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c, _ := NewOpenWeatherClient(testOptions(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.GetWeather(ctx, Query{Lat: 1, Lon: 2}); err == nil {
		t.Fatal("GetWeather() error = nil, want cancellation error")
	}
}

func TestOpenWeatherClient_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := testOptions(server.URL)
	opts.Backoff = upstream.Backoff{Attempts: 1}
	opts.Breaker = circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute, Component: "weather"})
	c, _ := NewOpenWeatherClient(opts)

	// Each call records at least one provider failure.
	for i := 0; i < 2; i++ {
		_, _ = c.GetWeather(context.Background(), Query{Lat: 1, Lon: 2})
	}
	before := atomic.LoadInt32(&calls)

	_, err := c.GetWeather(context.Background(), Query{Lat: 1, Lon: 2})
	if !errors.Is(err, upstream.ErrCircuitOpen) {
		t.Errorf("GetWeather() error = %v, want ErrCircuitOpen", err)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Errorf("provider called while breaker open")
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"valid", http.StatusOK, nil},
		{"unauthorized", http.StatusUnauthorized, upstream.ErrInvalidAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				if tt.status != http.StatusOK {
					w.WriteHeader(tt.status)
					return
				}
				writeJSONResponse(w, owmCurrentFixture())
			}))
			defer server.Close()

			c, _ := NewOpenWeatherClient(testOptions(server.URL))
			err := c.ValidateAPIKey(context.Background())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateAPIKey() error = %v", err)
				}
				// A recent success is reused.
				_ = c.ValidateAPIKey(context.Background())
				if atomic.LoadInt32(&calls) != 1 {
					t.Errorf("calls = %d, want 1", calls)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOneCallClient_GetWeather(t *testing.T) {
	uvi := 7.46
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/onecall" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("exclude") != "minutely,alerts" {
			t.Errorf("exclude = %q", r.URL.Query().Get("exclude"))
		}
		hourly := make([]map[string]interface{}, 48)
		for i := range hourly {
			hourly[i] = map[string]interface{}{
				"dt": forecastStart.Add(time.Duration(i) * time.Hour).Unix(), "temp": 20.0, "pop": 0.5,
				"weather": []map[string]interface{}{{"description": "clear sky", "icon": "01n"}},
			}
		}
		daily := make([]map[string]interface{}, 8)
		for i := range daily {
			daily[i] = map[string]interface{}{
				"dt":      forecastStart.Add(time.Duration(24*i+6) * time.Hour).Unix(),
				"temp":    map[string]interface{}{"min": 18.0, "max": 26.0},
				"pop":     0.2,
				"weather": []map[string]interface{}{{"description": "thunderstorm", "icon": "11d"}},
			}
		}
		writeJSONResponse(w, map[string]interface{}{
			"timezone":        "Europe/London",
			"timezone_offset": 3600,
			"current": map[string]interface{}{
				"dt": forecastStart.Unix(), "temp": 21.0, "pressure": 1012, "humidity": 55, "uvi": uvi,
				"visibility": 10000, "wind_speed": 3.0, "wind_deg": 90,
				"weather": []map[string]interface{}{{"description": "few clouds", "icon": "02d"}},
			},
			"hourly": hourly,
			"daily":  daily,
		})
	}))
	defer server.Close()

	c, err := NewOneCallClient(testOptions(server.URL))
	if err != nil {
		t.Fatalf("NewOneCallClient() error = %v", err)
	}
	got, err := c.GetWeather(context.Background(), Query{Lat: 51.5, Lon: -0.12})
	if err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	if got.Current.LocationTimezoneName != "Europe/London" {
		t.Errorf("LocationTimezoneName = %q, want Europe/London", got.Current.LocationTimezoneName)
	}
	// One Call has no place name; an unnamed query is labelled by its coordinates.
	if got.Current.LocationName != "51.5000, -0.1200" {
		t.Errorf("LocationName = %q, want coordinates", got.Current.LocationName)
	}
	named, err := c.GetWeather(context.Background(), Query{Lat: 51.5, Lon: -0.12, LocationName: "London, UK"})
	if err != nil {
		t.Fatalf("GetWeather() named error = %v", err)
	}
	if named.Current.LocationName != "London, UK" {
		t.Errorf("named LocationName = %q, want London, UK", named.Current.LocationName)
	}
	if got.Current.UVIndex == nil || *got.Current.UVIndex != 7.5 {
		t.Errorf("UVIndex = %v, want 7.5", got.Current.UVIndex)
	}
	if got.Current.Icon != normalize.IconCloudSun || got.Current.WindDirection != "E" || got.Current.Visibility != 10 {
		t.Errorf("current = %+v", got.Current)
	}
	if got.Current.PrecipitationChance != 50 {
		t.Errorf("PrecipitationChance = %d, want 50", got.Current.PrecipitationChance)
	}
	if len(got.Hourly) != oneCallHourlySlots || got.Hourly[0].Icon != normalize.IconMoon {
		t.Errorf("Hourly len=%d first=%+v", len(got.Hourly), got.Hourly[0])
	}
	if len(got.Daily) != normalize.MaxDailyDays {
		t.Fatalf("len(Daily) = %d, want %d", len(got.Daily), normalize.MaxDailyDays)
	}
	if got.Daily[0].Date != "2024-06-01" || got.Daily[0].Icon != normalize.IconCloudLightning || got.Daily[0].PrecipitationChance != 20 {
		t.Errorf("Daily[0] = %+v", got.Daily[0])
	}
}

func TestVisualCrossingClient_GetWeather(t *testing.T) {
	observed := forecastStart.Add(90 * time.Minute) // 01:30 UTC
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/17.6868,83.2185" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != testAPIKey || r.URL.Query().Get("unitGroup") != "metric" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		var days []map[string]interface{}
		for d := 0; d < 9; d++ {
			dayStart := forecastStart.AddDate(0, 0, d)
			var hours []map[string]interface{}
			for h := 0; h < 24; h++ {
				hours = append(hours, map[string]interface{}{
					"datetimeEpoch": dayStart.Add(time.Duration(h) * time.Hour).Unix(),
					"temp":          25.0, "precipprob": 40.0, "conditions": "rain, overcast", "icon": "rain",
				})
			}
			days = append(days, map[string]interface{}{
				"datetimeEpoch": dayStart.Unix(), "tempmin": 30.0, "tempmax": 22.0, "precipprob": 120.0,
				"conditions": "Partially cloudy", "icon": "partly-cloudy-day", "hours": hours,
			})
		}
		writeJSONResponse(w, map[string]interface{}{
			"resolvedAddress": "17.6868,83.2185",
			"timezone":        "UTC",
			"tzoffset":        0,
			"currentConditions": map[string]interface{}{
				"datetimeEpoch": observed.Unix(), "temp": 29.0, "humidity": 80.4, "precipprob": 10.0,
				"windspeed": 36.0, "winddir": 180.0, "pressure": 1006.6, "visibility": 9.5,
				"uvindex": 3.0, "conditions": "Clear", "icon": "clear-night",
			},
			"days": days,
		})
	}))
	defer server.Close()

	c, err := NewVisualCrossingClient(testOptions(server.URL))
	if err != nil {
		t.Fatalf("NewVisualCrossingClient() error = %v", err)
	}
	got, err := c.GetWeather(context.Background(), Query{Lat: 17.6868, Lon: 83.2185, LocationName: "Visakhapatnam"})
	if err != nil {
		t.Fatalf("GetWeather() error = %v", err)
	}
	cur := got.Current
	if cur.WindSpeed != 10 || cur.WindDirection != "S" {
		t.Errorf("wind = %v %s, want 10 S", cur.WindSpeed, cur.WindDirection)
	}
	if cur.Humidity != 80 || cur.Pressure != 1007 || cur.Visibility != 9.5 || cur.Icon != normalize.IconMoon {
		t.Errorf("current = %+v", cur)
	}
	if len(got.Hourly) != visualCrossingHourlySlots {
		t.Fatalf("len(Hourly) = %d", len(got.Hourly))
	}
	if got.Hourly[0].Time != forecastStart.Add(time.Hour).UnixMilli() {
		t.Errorf("first hourly slot = %d, want observation hour", got.Hourly[0].Time)
	}
	if got.Hourly[0].Description != "Rain, Overcast" || got.Hourly[0].PrecipitationChance != 40 {
		t.Errorf("Hourly[0] = %+v", got.Hourly[0])
	}
	if len(got.Daily) != normalize.MaxDailyDays {
		t.Fatalf("len(Daily) = %d", len(got.Daily))
	}
	d0 := got.Daily[0]
	if d0.MinTemp != 22 || d0.MaxTemp != 30 || d0.PrecipitationChance != 100 || d0.Icon != normalize.IconCloudSun {
		t.Errorf("Daily[0] = %+v", d0)
	}
}

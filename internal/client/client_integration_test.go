//go:build integration
// +build integration

package client

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
)

func isValidAPIKeyFormat(key string) error {
	if len(key) != 32 {
		return fmt.Errorf("API key length is %d, expected 32", len(key))
	}

	hexPattern := regexp.MustCompile(`^[0-9a-fA-F]+$`)
	if !hexPattern.MatchString(key) {
		return fmt.Errorf("API key contains non-hexadecimal characters")
	}

	return nil
}

func integrationClient(t *testing.T) *OpenWeatherClient {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	if err := isValidAPIKeyFormat(apiKey); err != nil {
		t.Fatalf("API key format validation failed: %v", err)
	}
	c, err := NewOpenWeatherClient(Options{APIKey: apiKey, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_ValidateAPIKey_Integration(t *testing.T) {
	c := integrationClient(t)
	if err := c.ValidateAPIKey(context.Background()); err != nil {
		t.Errorf("ValidateAPIKey() error = %v, want nil (API key may not be activated yet)", err)
	}
}

func TestOpenWeatherClient_GetWeather_Integration(t *testing.T) {
	c := integrationClient(t)

	data, err := c.GetWeather(context.Background(), Query{Lat: 17.6868, Lon: 83.2185, LocationName: "Visakhapatnam, India", TimezoneName: "Asia/Kolkata"})
	if err != nil {
		t.Fatalf("GetWeather() error = %v (API key may not be activated yet)", err)
	}
	if data.Current.LocationName == "" {
		t.Error("GetWeather() returned empty location name")
	}
	if !normalize.IsAppIcon(data.Current.Icon) {
		t.Errorf("GetWeather() icon %q is not an app icon", data.Current.Icon)
	}
	if len(data.Hourly) == 0 || len(data.Daily) == 0 {
		t.Errorf("GetWeather() returned %d hourly and %d daily entries", len(data.Hourly), len(data.Daily))
	}
	for _, d := range data.Daily {
		if d.MinTemp > d.MaxTemp {
			t.Errorf("day %s min %v > max %v", d.Date, d.MinTemp, d.MaxTemp)
		}
	}
}

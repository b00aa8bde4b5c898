package models

import "time"

// CurrentWeather is the normalized current-conditions record. Units are metric:
// temperature in °C, wind speed in m/s, pressure in hPa, visibility in km.
type CurrentWeather struct {
	LocationName          string   `json:"locationName"`
	Temperature           float64  `json:"temperature"`
	Description           string   `json:"description"`
	Humidity              int      `json:"humidity"`
	PrecipitationChance   int      `json:"precipitationChance"`
	WindSpeed             float64  `json:"windSpeed"`
	WindDirection         string   `json:"windDirection"`
	Pressure              int      `json:"pressure"`
	Visibility            float64  `json:"visibility"`
	Icon                  string   `json:"icon"`
	Timestamp             int64    `json:"timestamp"` // UTC ms epoch of the observation
	TimezoneOffsetSeconds int      `json:"timezoneOffsetSeconds"`
	LocationTimezoneName  string   `json:"locationTimezoneName"`
	UVIndex               *float64 `json:"uvIndex,omitempty"`
}

// HourlyForecast is one forecast slot. Time is a UTC ms epoch.
type HourlyForecast struct {
	Time                int64   `json:"time"`
	Temperature         float64 `json:"temperature"`
	Description         string  `json:"description"`
	Icon                string  `json:"icon"`
	PrecipitationChance int     `json:"precipitationChance"`
}

// DailyForecast summarizes one local calendar day.
type DailyForecast struct {
	Date                string  `json:"date"` // YYYY-MM-DD in the location's timezone
	DayName             string  `json:"dayName"`
	MinTemp             float64 `json:"minTemp"`
	MaxTemp             float64 `json:"maxTemp"`
	Description         string  `json:"description"`
	Icon                string  `json:"icon"`
	PrecipitationChance int     `json:"precipitationChance"`
}

// WeatherData is the aggregate served to the dashboard.
type WeatherData struct {
	Current   CurrentWeather   `json:"current"`
	Hourly    []HourlyForecast `json:"hourly"`
	Daily     []DailyForecast  `json:"daily"`
	Provider  string           `json:"provider"`
	FetchedAt time.Time        `json:"fetchedAt"`
	Stale     bool             `json:"stale,omitempty"`
}

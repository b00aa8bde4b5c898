package models

// GeocodedLocation is the result of a forward or reverse geocode.
type GeocodedLocation struct {
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	Altitude     *float64 `json:"altitude,omitempty"`
	TimezoneName string   `json:"timezoneName"`
	Name         string   `json:"name,omitempty"`
}

// LocationWeather pairs a resolved location with its weather.
type LocationWeather struct {
	Location GeocodedLocation `json:"location"`
	Weather  WeatherData      `json:"weather"`
}

package geocode

import (
	"context"
	"strconv"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

const geoapifyURL = "https://api.geoapify.com"

// GeoapifyGeocoder uses the Geoapify search and reverse endpoints.
type GeoapifyGeocoder struct {
	restGeocoder
}

func NewGeoapify(opts Options) *GeoapifyGeocoder {
	return &GeoapifyGeocoder{restGeocoder: newRestGeocoder(ProviderGeoapify, "apiKey", geoapifyURL, opts)}
}

type geoapifyResponse struct {
	Features []struct {
		Properties struct {
			Lat       float64 `json:"lat"`
			Lon       float64 `json:"lon"`
			Formatted string  `json:"formatted"`
			Timezone  struct {
				Name string `json:"name"`
			} `json:"timezone"`
		} `json:"properties"`
	} `json:"features"`
}

func (g *GeoapifyGeocoder) Forward(ctx context.Context, address string) (models.GeocodedLocation, error) {
	var resp geoapifyResponse
	err := g.get(ctx, "/v1/geocode/search", map[string]string{"text": address, "limit": "1"}, &resp)
	if err != nil {
		return models.GeocodedLocation{}, err
	}
	return g.first(resp, address)
}

func (g *GeoapifyGeocoder) Reverse(ctx context.Context, lat, lng float64) (models.GeocodedLocation, error) {
	var resp geoapifyResponse
	params := map[string]string{
		"lat": strconv.FormatFloat(lat, 'f', -1, 64),
		"lon": strconv.FormatFloat(lng, 'f', -1, 64),
	}
	if err := g.get(ctx, "/v1/geocode/reverse", params, &resp); err != nil {
		return models.GeocodedLocation{}, err
	}
	return g.first(resp, coordQuery(lat, lng))
}

func (g *GeoapifyGeocoder) first(resp geoapifyResponse, query string) (models.GeocodedLocation, error) {
	if len(resp.Features) == 0 {
		return models.GeocodedLocation{}, notFound(g.provider, query)
	}
	p := resp.Features[0].Properties
	tz := p.Timezone.Name
	if tz == "" {
		tz = "Unknown"
	}
	return models.GeocodedLocation{
		Lat:          p.Lat,
		Lng:          p.Lon,
		TimezoneName: tz,
		Name:         p.Formatted,
	}, nil
}

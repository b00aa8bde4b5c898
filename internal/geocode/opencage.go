package geocode

import (
	"context"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

const openCageURL = "https://api.opencagedata.com"

// globeAltitude is the camera altitude the dashboard globe flies to after a
// forward lookup.
const globeAltitude = 1.5

// OpenCageGeocoder uses the OpenCage geocode endpoint for both directions.
type OpenCageGeocoder struct {
	restGeocoder
}

func NewOpenCage(opts Options) *OpenCageGeocoder {
	return &OpenCageGeocoder{restGeocoder: newRestGeocoder(ProviderOpenCage, "key", openCageURL, opts)}
}

type openCageResponse struct {
	Results []struct {
		Geometry struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"geometry"`
		Formatted   string `json:"formatted"`
		Annotations struct {
			Timezone struct {
				Name string `json:"name"`
			} `json:"timezone"`
		} `json:"annotations"`
	} `json:"results"`
}

func (g *OpenCageGeocoder) Forward(ctx context.Context, address string) (models.GeocodedLocation, error) {
	loc, err := g.lookup(ctx, address)
	if err != nil {
		return models.GeocodedLocation{}, err
	}
	alt := globeAltitude
	loc.Altitude = &alt
	return loc, nil
}

func (g *OpenCageGeocoder) Reverse(ctx context.Context, lat, lng float64) (models.GeocodedLocation, error) {
	return g.lookup(ctx, coordQuery(lat, lng))
}

func (g *OpenCageGeocoder) lookup(ctx context.Context, q string) (models.GeocodedLocation, error) {
	var resp openCageResponse
	if err := g.get(ctx, "/geocode/v1/json", map[string]string{"q": q, "limit": "1"}, &resp); err != nil {
		return models.GeocodedLocation{}, err
	}
	if len(resp.Results) == 0 {
		return models.GeocodedLocation{}, notFound(g.provider, q)
	}
	r := resp.Results[0]
	tz := r.Annotations.Timezone.Name
	if tz == "" {
		tz = "UTC"
	}
	return models.GeocodedLocation{
		Lat:          r.Geometry.Lat,
		Lng:          r.Geometry.Lng,
		TimezoneName: tz,
		Name:         r.Formatted,
	}, nil
}

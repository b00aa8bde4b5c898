package client

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
)

const visualCrossingURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

const visualCrossingHourlySlots = 24

// VisualCrossingClient reads the Visual Crossing timeline API. Wind speeds
// arrive in km/h and are converted to m/s.
type VisualCrossingClient struct {
	*baseClient
}

func NewVisualCrossingClient(opts Options) (*VisualCrossingClient, error) {
	base, err := newBaseClient(ProviderVisualCrossing, "key", visualCrossingURL, opts)
	if err != nil {
		return nil, err
	}
	return &VisualCrossingClient{baseClient: base}, nil
}

type vcConditions struct {
	DatetimeEpoch int64    `json:"datetimeEpoch"`
	Temp          float64  `json:"temp"`
	Humidity      float64  `json:"humidity"`
	PrecipProb    *float64 `json:"precipprob"`
	WindSpeed     float64  `json:"windspeed"`
	WindDir       *float64 `json:"winddir"`
	Pressure      float64  `json:"pressure"`
	Visibility    float64  `json:"visibility"`
	UVIndex       *float64 `json:"uvindex"`
	Conditions    string   `json:"conditions"`
	Icon          string   `json:"icon"`
}

type vcDay struct {
	DatetimeEpoch int64          `json:"datetimeEpoch"`
	TempMin       float64        `json:"tempmin"`
	TempMax       float64        `json:"tempmax"`
	PrecipProb    *float64       `json:"precipprob"`
	Conditions    string         `json:"conditions"`
	Icon          string         `json:"icon"`
	Hours         []vcConditions `json:"hours"`
}

type vcResponse struct {
	ResolvedAddress   string       `json:"resolvedAddress"`
	Timezone          string       `json:"timezone"`
	TzOffset          float64      `json:"tzoffset"`
	CurrentConditions vcConditions `json:"currentConditions"`
	Days              []vcDay      `json:"days"`
}

func vcParams() url.Values {
	params := url.Values{}
	params.Set("unitGroup", "metric")
	params.Set("contentType", "json")
	params.Set("include", "current,days,hours")
	return params
}

func vcPath(lat, lon float64) string {
	return fmt.Sprintf("/%s,%s", formatCoord(lat), formatCoord(lon))
}

func (c *VisualCrossingClient) GetWeather(ctx context.Context, q Query) (models.WeatherData, error) {
	var resp vcResponse
	if err := c.getJSON(ctx, vcPath(q.Lat, q.Lon), vcParams(), &resp); err != nil {
		return models.WeatherData{}, err
	}
	return c.mapResponse(q, resp), nil
}

func (c *VisualCrossingClient) mapResponse(q Query, resp vcResponse) models.WeatherData {
	tzName := q.TimezoneName
	if tzName == "" || tzName == "Unknown" {
		tzName = resp.Timezone
	}
	offset := int(math.Round(resp.TzOffset * 3600))
	loc := normalize.Location(tzName, offset)
	cur := resp.CurrentConditions

	observed := time.Unix(cur.DatetimeEpoch, 0)
	if cur.DatetimeEpoch == 0 {
		observed = c.now()
	}

	current := models.CurrentWeather{
		LocationName:          locationName(q, resp.ResolvedAddress),
		Temperature:           normalize.Round1(cur.Temp),
		Description:           normalize.Description(cur.Conditions),
		Humidity:              int(math.Round(cur.Humidity)),
		PrecipitationChance:   percentOrZero(cur.PrecipProb),
		WindSpeed:             normalize.Round1(normalize.Kmh(cur.WindSpeed)),
		WindDirection:         normalize.WindDirection(cur.WindDir),
		Pressure:              int(math.Round(cur.Pressure)),
		Visibility:            normalize.Round1(cur.Visibility),
		Icon:                  normalize.Icon(cur.Icon),
		Timestamp:             observed.UnixMilli(),
		TimezoneOffsetSeconds: offset,
		LocationTimezoneName:  timezoneName(q, resp.Timezone, loc),
		UVIndex:               cur.UVIndex,
	}

	// Hours are flattened across days, starting at the observation's hour.
	from := observed.Truncate(time.Hour)
	hourly := make([]models.HourlyForecast, 0, visualCrossingHourlySlots)
	for _, day := range resp.Days {
		for _, h := range day.Hours {
			if len(hourly) == visualCrossingHourlySlots {
				break
			}
			ts := time.Unix(h.DatetimeEpoch, 0)
			if ts.Before(from) {
				continue
			}
			hourly = append(hourly, models.HourlyForecast{
				Time:                ts.UnixMilli(),
				Temperature:         normalize.Round1(h.Temp),
				Description:         normalize.Description(h.Conditions),
				Icon:                normalize.Icon(h.Icon),
				PrecipitationChance: percentOrZero(h.PrecipProb),
			})
		}
	}

	daily := make([]models.DailyForecast, 0, normalize.MaxDailyDays)
	for _, d := range resp.Days {
		if len(daily) == normalize.MaxDailyDays {
			break
		}
		daily = append(daily, normalize.Daily(time.Unix(d.DatetimeEpoch, 0), loc, d.TempMin, d.TempMax,
			percentOrZero(d.PrecipProb), normalize.Description(d.Conditions), normalize.Icon(d.Icon)))
	}

	return models.WeatherData{
		Current:   current,
		Hourly:    hourly,
		Daily:     daily,
		Provider:  c.provider,
		FetchedAt: c.now().UTC(),
	}
}

func (c *VisualCrossingClient) ValidateAPIKey(ctx context.Context) error {
	params := vcParams()
	params.Set("include", "current")
	return c.validate(ctx, vcPath(validationLat, validationLon), params)
}

func percentOrZero(p *float64) int {
	if p == nil {
		return 0
	}
	return normalize.ClampPercent(*p)
}

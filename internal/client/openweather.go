package client

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
)

const openWeatherURL = "https://api.openweathermap.org/data/2.5"

// openWeatherHourlySlots is one day of 3-hourly forecast entries.
const openWeatherHourlySlots = 8

// OpenWeatherClient reads the OpenWeatherMap 2.5 current and 5 day / 3 hour endpoints.
type OpenWeatherClient struct {
	*baseClient
}

func NewOpenWeatherClient(opts Options) (*OpenWeatherClient, error) {
	base, err := newBaseClient(ProviderOpenWeather, "appid", openWeatherURL, opts)
	if err != nil {
		return nil, err
	}
	return &OpenWeatherClient{baseClient: base}, nil
}

type owmCondition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmCurrentResponse struct {
	Weather []owmCondition `json:"weather"`
	Main    struct {
		Temp     float64 `json:"temp"`
		Pressure int     `json:"pressure"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Visibility *float64 `json:"visibility"`
	Wind       struct {
		Speed float64  `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Dt       int64  `json:"dt"`
	Timezone int    `json:"timezone"`
	Name     string `json:"name"`
}

type owmForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp    float64 `json:"temp"`
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []owmCondition `json:"weather"`
		Pop     float64        `json:"pop"`
	} `json:"list"`
	City struct {
		Name     string `json:"name"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

// GetWeather fetches current conditions and the forecast concurrently.
func (c *OpenWeatherClient) GetWeather(ctx context.Context, q Query) (models.WeatherData, error) {
	var current owmCurrentResponse
	var forecast owmForecastResponse

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.getJSON(gctx, "/weather", coordParams(q.Lat, q.Lon), &current); err != nil {
			return fmt.Errorf("current weather: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.getJSON(gctx, "/forecast", coordParams(q.Lat, q.Lon), &forecast); err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.WeatherData{}, err
	}
	return c.mapResponse(q, current, forecast), nil
}

func (c *OpenWeatherClient) mapResponse(q Query, cur owmCurrentResponse, fc owmForecastResponse) models.WeatherData {
	loc := normalize.Location(q.TimezoneName, cur.Timezone)
	desc, icon := firstCondition(cur.Weather)

	precip := 0
	if len(fc.List) > 0 {
		precip = normalize.PrecipPercent(fc.List[0].Pop)
	}
	visibility := 0.0
	if cur.Visibility != nil {
		visibility = normalize.Round1(*cur.Visibility / 1000)
	}
	observed := time.Unix(cur.Dt, 0)
	if cur.Dt == 0 {
		observed = c.now()
	}

	current := models.CurrentWeather{
		LocationName:          locationName(q, cur.Name),
		Temperature:           normalize.Round1(cur.Main.Temp),
		Description:           desc,
		Humidity:              cur.Main.Humidity,
		PrecipitationChance:   precip,
		WindSpeed:             normalize.Round1(cur.Wind.Speed),
		WindDirection:         normalize.WindDirection(cur.Wind.Deg),
		Pressure:              cur.Main.Pressure,
		Visibility:            visibility,
		Icon:                  icon,
		Timestamp:             observed.UnixMilli(),
		TimezoneOffsetSeconds: cur.Timezone,
		LocationTimezoneName:  timezoneName(q, "", loc),
	}

	hourly := make([]models.HourlyForecast, 0, openWeatherHourlySlots)
	entries := make([]normalize.ForecastEntry, 0, len(fc.List))
	for i, item := range fc.List {
		d, ic := firstCondition(item.Weather)
		ts := time.Unix(item.Dt, 0)
		if i < openWeatherHourlySlots {
			hourly = append(hourly, models.HourlyForecast{
				Time:                ts.UnixMilli(),
				Temperature:         normalize.Round1(item.Main.Temp),
				Description:         d,
				Icon:                ic,
				PrecipitationChance: normalize.PrecipPercent(item.Pop),
			})
		}
		entries = append(entries, normalize.ForecastEntry{
			Time:        ts,
			Temp:        item.Main.Temp,
			TempMin:     item.Main.TempMin,
			TempMax:     item.Main.TempMax,
			Pop:         item.Pop,
			Description: d,
			Icon:        ic,
		})
	}

	return models.WeatherData{
		Current:   current,
		Hourly:    hourly,
		Daily:     normalize.AggregateDaily(entries, loc, normalize.MaxDailyDays),
		Provider:  c.provider,
		FetchedAt: c.now().UTC(),
	}
}

// ValidateAPIKey checks the key against the current-weather endpoint.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	return c.validate(ctx, "/weather", coordParams(validationLat, validationLon))
}

func firstCondition(conds []owmCondition) (description, icon string) {
	if len(conds) == 0 {
		return "", normalize.DefaultIcon
	}
	return normalize.Description(conds[0].Description), normalize.Icon(conds[0].Icon)
}

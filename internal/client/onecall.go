package client

import (
	"context"
	"math"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
)

const oneCallURL = "https://api.openweathermap.org/data/3.0"

const oneCallHourlySlots = 24

// OneCallClient reads the OpenWeatherMap One Call 3.0 endpoint.
type OneCallClient struct {
	*baseClient
}

func NewOneCallClient(opts Options) (*OneCallClient, error) {
	base, err := newBaseClient(ProviderOneCall, "appid", oneCallURL, opts)
	if err != nil {
		return nil, err
	}
	return &OneCallClient{baseClient: base}, nil
}

type oneCallResponse struct {
	Timezone       string `json:"timezone"`
	TimezoneOffset int    `json:"timezone_offset"`
	Current        struct {
		Dt         int64          `json:"dt"`
		Temp       float64        `json:"temp"`
		Pressure   int            `json:"pressure"`
		Humidity   int            `json:"humidity"`
		UVI        *float64       `json:"uvi"`
		Visibility *float64       `json:"visibility"`
		WindSpeed  float64        `json:"wind_speed"`
		WindDeg    *float64       `json:"wind_deg"`
		Weather    []owmCondition `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt      int64          `json:"dt"`
		Temp    float64        `json:"temp"`
		Pop     float64        `json:"pop"`
		Weather []owmCondition `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Pop     float64        `json:"pop"`
		Weather []owmCondition `json:"weather"`
	} `json:"daily"`
}

func (c *OneCallClient) GetWeather(ctx context.Context, q Query) (models.WeatherData, error) {
	params := coordParams(q.Lat, q.Lon)
	params.Set("exclude", "minutely,alerts")

	var resp oneCallResponse
	if err := c.getJSON(ctx, "/onecall", params, &resp); err != nil {
		return models.WeatherData{}, err
	}
	return c.mapResponse(q, resp), nil
}

func (c *OneCallClient) mapResponse(q Query, resp oneCallResponse) models.WeatherData {
	tzName := q.TimezoneName
	if tzName == "" || tzName == "Unknown" {
		tzName = resp.Timezone
	}
	loc := normalize.Location(tzName, resp.TimezoneOffset)
	desc, icon := firstCondition(resp.Current.Weather)

	precip := 0
	if len(resp.Hourly) > 0 {
		precip = normalize.PrecipPercent(resp.Hourly[0].Pop)
	}
	visibility := 0.0
	if resp.Current.Visibility != nil {
		visibility = normalize.Round1(*resp.Current.Visibility / 1000)
	}
	var uvi *float64
	if resp.Current.UVI != nil {
		v := math.Round(*resp.Current.UVI*10) / 10
		uvi = &v
	}
	observed := time.Unix(resp.Current.Dt, 0)
	if resp.Current.Dt == 0 {
		observed = c.now()
	}

	current := models.CurrentWeather{
		LocationName:          locationName(q, ""),
		Temperature:           normalize.Round1(resp.Current.Temp),
		Description:           desc,
		Humidity:              resp.Current.Humidity,
		PrecipitationChance:   precip,
		WindSpeed:             normalize.Round1(resp.Current.WindSpeed),
		WindDirection:         normalize.WindDirection(resp.Current.WindDeg),
		Pressure:              resp.Current.Pressure,
		Visibility:            visibility,
		Icon:                  icon,
		Timestamp:             observed.UnixMilli(),
		TimezoneOffsetSeconds: resp.TimezoneOffset,
		LocationTimezoneName:  timezoneName(q, resp.Timezone, loc),
		UVIndex:               uvi,
	}

	hourly := make([]models.HourlyForecast, 0, oneCallHourlySlots)
	for _, h := range resp.Hourly {
		if len(hourly) == oneCallHourlySlots {
			break
		}
		d, ic := firstCondition(h.Weather)
		hourly = append(hourly, models.HourlyForecast{
			Time:                time.Unix(h.Dt, 0).UnixMilli(),
			Temperature:         normalize.Round1(h.Temp),
			Description:         d,
			Icon:                ic,
			PrecipitationChance: normalize.PrecipPercent(h.Pop),
		})
	}

	daily := make([]models.DailyForecast, 0, normalize.MaxDailyDays)
	for _, d := range resp.Daily {
		if len(daily) == normalize.MaxDailyDays {
			break
		}
		desc, ic := firstCondition(d.Weather)
		daily = append(daily, normalize.Daily(time.Unix(d.Dt, 0), loc, d.Temp.Min, d.Temp.Max, normalize.PrecipPercent(d.Pop), desc, ic))
	}

	return models.WeatherData{
		Current:   current,
		Hourly:    hourly,
		Daily:     daily,
		Provider:  c.provider,
		FetchedAt: c.now().UTC(),
	}
}

func (c *OneCallClient) ValidateAPIKey(ctx context.Context) error {
	params := coordParams(validationLat, validationLon)
	params.Set("exclude", "minutely,hourly,daily,alerts")
	return c.validate(ctx, "/onecall", params)
}

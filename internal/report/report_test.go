package report

import (
	"bytes"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

var observed = time.Date(2024, 6, 1, 6, 30, 0, 0, time.UTC)

func sampleData() models.WeatherData {
	uv := 7.5
	data := models.WeatherData{
		Current: models.CurrentWeather{
			LocationName:          "Visakhapatnam, India",
			Temperature:           31.2,
			Description:           "Scattered Clouds",
			Humidity:              70,
			PrecipitationChance:   35,
			WindSpeed:             4.1,
			WindDirection:         "SW",
			Pressure:              1004,
			Visibility:            6,
			Timestamp:             observed.UnixMilli(),
			TimezoneOffsetSeconds: 19800,
			LocationTimezoneName:  "Asia/Kolkata",
			UVIndex:               &uv,
		},
	}
	for i := 0; i < 6; i++ {
		data.Hourly = append(data.Hourly, models.HourlyForecast{
			Time:                observed.Add(time.Duration(3*i) * time.Hour).UnixMilli(),
			Temperature:         30 + float64(i),
			Description:         "Light Rain",
			PrecipitationChance: 40,
		})
	}
	for i, d := range []string{"2024-06-01", "2024-06-02", "2024-06-03", "2024-06-04"} {
		data.Daily = append(data.Daily, models.DailyForecast{
			Date: d, DayName: []string{"Sat", "Sun", "Mon", "Tue"}[i],
			MinTemp: 26, MaxTemp: 33.5, Description: "Thunderstorm", PrecipitationChance: 80,
		})
	}
	return data
}

func TestBuild(t *testing.T) {
	doc := Build(sampleData(), time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC))

	assert.Equal(t, "Weather Report: Visakhapatnam, India", doc.Title)
	assert.Equal(t, "Generated: Jun 1, 2024, 7:00:00 AM UTC", doc.Generated)
	require.Len(t, doc.Sections, 3)

	current := doc.Sections[0]
	assert.Equal(t, "Current Conditions", current.Heading)
	assert.Equal(t, []string{
		"Time: Jun 1, 2024, 12:00:00 PM (Asia/Kolkata)",
		"Temperature: 31.2°C",
		"Description: Scattered Clouds",
		"Humidity: 70%",
		"Precipitation Chance: 35%",
		"Wind: 4.1 m/s SW",
		"Pressure: 1004 hPa",
		"UV Index: 7.5",
		"Visibility: 6 km",
	}, current.Lines)

	hourly := doc.Sections[1]
	assert.Equal(t, "Hourly Forecast (Next 4 Hours)", hourly.Heading)
	require.Len(t, hourly.Lines, 4)
	assert.Equal(t, "12:00 - 30°C, Light Rain, 40% precip.", hourly.Lines[0])
	assert.Equal(t, "21:00 - 33°C, Light Rain, 40% precip.", hourly.Lines[3])

	daily := doc.Sections[2]
	require.Len(t, daily.Lines, 3)
	assert.Equal(t, "Sat (Jun 1) - 26°/33.5°C, Thunderstorm, 80% precip.", daily.Lines[0])
	assert.Equal(t, "Mon (Jun 3) - 26°/33.5°C, Thunderstorm, 80% precip.", daily.Lines[2])
}

func TestBuild_WithoutUVOrTimezone(t *testing.T) {
	data := sampleData()
	data.Current.UVIndex = nil
	data.Current.LocationTimezoneName = ""
	data.Current.TimezoneOffsetSeconds = 0

	doc := Build(data, observed)
	for _, line := range doc.Sections[0].Lines {
		assert.NotContains(t, line, "UV Index")
	}
	assert.Equal(t, "06:00 (UTC) - 30°C, Light Rain, 40% precip.", doc.Sections[1].Lines[0])
}

func TestGenerate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, sampleData(), observed))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Contains(t, buf.String(), "%%EOF")
}

func TestGenerate_EmptyForecast(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, models.WeatherData{}, observed))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Visakhapatnam, India", "Weather_Report_Visakhapatnam_India_2024-06-01.pdf"},
		{"New  York (NY)", "Weather_Report_New_York_NY_2024-06-01.pdf"},
		{"St. John's", "Weather_Report_St_Johns_2024-06-01.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.name, time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)))
		})
	}
}

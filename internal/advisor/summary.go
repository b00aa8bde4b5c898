package advisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
)

// SummarizeWindow renders the current conditions and every hourly entry whose
// time falls inside [from, to] as one line each, in the location's local time.
func SummarizeWindow(data models.WeatherData, from, to time.Time) string {
	loc := normalize.Location(data.Current.LocationTimezoneName, data.Current.TimezoneOffsetSeconds)
	cur := data.Current

	var b strings.Builder
	fmt.Fprintf(&b, "Current conditions at %s (%s): %.1f°C, %s, humidity %d%%, precipitation chance %d%%, wind %.1f m/s %s",
		cur.LocationName, time.UnixMilli(cur.Timestamp).In(loc).Format("2006-01-02 15:04 MST"),
		cur.Temperature, cur.Description, cur.Humidity, cur.PrecipitationChance, cur.WindSpeed, cur.WindDirection)
	if cur.UVIndex != nil {
		fmt.Fprintf(&b, ", UV index %.1f", *cur.UVIndex)
	}
	b.WriteString(".\n")

	n := 0
	for _, h := range data.Hourly {
		t := time.UnixMilli(h.Time)
		if t.Before(from) || t.After(to) {
			continue
		}
		fmt.Fprintf(&b, "%s: %.1f°C, %s, precipitation chance %d%%.\n",
			t.In(loc).Format("2006-01-02 15:04 MST"), h.Temperature, h.Description, h.PrecipitationChance)
		n++
	}
	if n == 0 {
		b.WriteString("No hourly forecast entries fall inside the window.\n")
	}
	return b.String()
}

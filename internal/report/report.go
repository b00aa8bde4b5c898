// Package report renders a weather snapshot as a one-page PDF.
package report

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/normalize"
)

const (
	hourlyEntries = 4
	dailyEntries  = 3
)

// Document is the text content of a report, independent of layout.
type Document struct {
	Title     string
	Generated string
	Sections  []Section
}

type Section struct {
	Heading string
	Lines   []string
}

// Generate writes the PDF report for data to w.
func Generate(w io.Writer, data models.WeatherData, generatedAt time.Time) error {
	return Render(w, Build(data, generatedAt))
}

// Build lays out the report text for data.
func Build(data models.WeatherData, generatedAt time.Time) Document {
	cur := data.Current
	loc, utcFallback := zone(cur)

	observed := time.UnixMilli(cur.Timestamp).In(loc).Format("Jan 2, 2006, 3:04:05 PM")
	tzName := cur.LocationTimezoneName
	if tzName == "" {
		tzName = loc.String()
	}
	current := []string{
		fmt.Sprintf("Time: %s (%s)", observed, tzName),
		fmt.Sprintf("Temperature: %s°C", num(cur.Temperature)),
		fmt.Sprintf("Description: %s", cur.Description),
		fmt.Sprintf("Humidity: %d%%", cur.Humidity),
		fmt.Sprintf("Precipitation Chance: %d%%", cur.PrecipitationChance),
		fmt.Sprintf("Wind: %s m/s %s", num(cur.WindSpeed), cur.WindDirection),
		fmt.Sprintf("Pressure: %d hPa", cur.Pressure),
	}
	if cur.UVIndex != nil {
		current = append(current, fmt.Sprintf("UV Index: %s", num(*cur.UVIndex)))
	}
	current = append(current, fmt.Sprintf("Visibility: %s km", num(cur.Visibility)))

	var hourly []string
	for i, h := range data.Hourly {
		if i == hourlyEntries {
			break
		}
		hour := time.UnixMilli(h.Time).In(loc).Format("15") + ":00"
		if utcFallback {
			hour += " (UTC)"
		}
		hourly = append(hourly, fmt.Sprintf("%s - %s°C, %s, %d%% precip.", hour, num(h.Temperature), h.Description, h.PrecipitationChance))
	}

	var daily []string
	for i, d := range data.Daily {
		if i == dailyEntries {
			break
		}
		date := "N/A"
		if t, err := time.Parse("2006-01-02", d.Date); err == nil {
			date = t.Format("Jan 2")
		}
		daily = append(daily, fmt.Sprintf("%s (%s) - %s°/%s°C, %s, %d%% precip.",
			d.DayName, date, num(d.MinTemp), num(d.MaxTemp), d.Description, d.PrecipitationChance))
	}

	return Document{
		Title:     "Weather Report: " + cur.LocationName,
		Generated: "Generated: " + generatedAt.UTC().Format("Jan 2, 2006, 3:04:05 PM MST"),
		Sections: []Section{
			{Heading: "Current Conditions", Lines: current},
			{Heading: "Hourly Forecast (Next 4 Hours)", Lines: hourly},
			{Heading: "Daily Forecast (Next 3 Days)", Lines: daily},
		},
	}
}

// Render draws doc on an A4 page.
func Render(w io.Writer, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.Title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Text(14, 20, tr(doc.Title))
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(14, 28, tr(doc.Generated))

	y := 40.0
	for _, s := range doc.Sections {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Text(14, y, tr(s.Heading))
		y += 7
		pdf.SetFont("Helvetica", "", 10)
		for _, line := range s.Lines {
			pdf.Text(14, y, tr(line))
			y += 5
		}
		y += 5
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Filename is the download name for a report on name generated at now.
func Filename(name string, now time.Time) string {
	clean := strings.Join(strings.Fields(nonWord.ReplaceAllString(name, "")), "_")
	return fmt.Sprintf("Weather_Report_%s_%s.pdf", clean, now.UTC().Format("2006-01-02"))
}

// zone returns the location's zone; utcFallback is set when neither a zone
// name nor an offset is known.
func zone(cur models.CurrentWeather) (loc *time.Location, utcFallback bool) {
	loc = normalize.Location(cur.LocationTimezoneName, cur.TimezoneOffsetSeconds)
	return loc, loc == time.UTC && cur.LocationTimezoneName != "UTC"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package normalize converts provider-specific weather values into the units,
// labels and icons used by the dashboard.
package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

var compass = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// WindDirection converts meteorological degrees to a 16-point compass label.
// Returns "N/A" when the provider omitted the value.
func WindDirection(deg *float64) string {
	if deg == nil || math.IsNaN(*deg) {
		return "N/A"
	}
	d := math.Mod(*deg, 360)
	if d < 0 {
		d += 360
	}
	return compass[int(math.Floor((d+11.25)/22.5))%16]
}

// Description upper-cases the first letter of every word, leaving the rest as sent.
func Description(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	wordStart := true
	for _, r := range s {
		isWord := unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
		if isWord && wordStart {
			r = unicode.ToUpper(r)
		}
		wordStart = !isWord
		b.WriteRune(r)
	}
	return b.String()
}

// PrecipPercent converts a probability of precipitation (0..1) to a whole percent in [0,100].
func PrecipPercent(pop float64) int {
	if math.IsNaN(pop) || pop <= 0 {
		return 0
	}
	if pop >= 1 {
		return 100
	}
	return int(math.Round(pop * 100))
}

// ClampPercent rounds a provider percentage and clamps it to [0,100].
func ClampPercent(p float64) int {
	if math.IsNaN(p) || p <= 0 {
		return 0
	}
	if p >= 100 {
		return 100
	}
	return int(math.Round(p))
}

// Location returns the IANA zone for tzName when it loads, otherwise a fixed
// zone at offsetSeconds east of UTC.
func Location(tzName string, offsetSeconds int) *time.Location {
	name := strings.TrimSpace(tzName)
	if name != "" && name != "Unknown" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	if offsetSeconds == 0 {
		return time.UTC
	}
	return time.FixedZone(offsetName(offsetSeconds), offsetSeconds)
}

func offsetName(offsetSeconds int) string {
	sign := '+'
	if offsetSeconds < 0 {
		sign = '-'
		offsetSeconds = -offsetSeconds
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offsetSeconds/3600, (offsetSeconds%3600)/60)
}

// Kmh converts km/h to m/s.
func Kmh(v float64) float64 {
	return v / 3.6
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

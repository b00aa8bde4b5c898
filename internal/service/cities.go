package service

import (
	_ "embed"
	"strings"
)

// MaxCitySuggestions caps the search-bar recommendation list.
const MaxCitySuggestions = 5

//go:embed cities.txt
var citiesFile string

var cities = loadCities(citiesFile)

func loadCities(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// SuggestCities returns up to MaxCitySuggestions recommended place names containing
// query, case-insensitively. Names starting with the query come first. A blank
// query returns an empty list.
func SuggestCities(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []string{}
	}
	var prefixed, contained []string
	for _, name := range cities {
		lower := strings.ToLower(name)
		switch {
		case strings.HasPrefix(lower, q):
			prefixed = append(prefixed, name)
		case strings.Contains(lower, q):
			contained = append(contained, name)
		}
	}
	out := append(prefixed, contained...)
	if len(out) > MaxCitySuggestions {
		out = out[:MaxCitySuggestions]
	}
	if out == nil {
		return []string{}
	}
	return out
}

// SuggestCities is the method form used by the HTTP layer.
func (s *DashboardService) SuggestCities(query string) []string {
	return SuggestCities(query)
}

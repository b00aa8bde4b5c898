package normalize

import (
	"math"
	"sort"
	"time"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
)

const (
	dateLayout = "2006-01-02"

	// Local hours used to pick a representative icon for the day.
	middayStart = 10
	middayEnd   = 15

	fallbackDescription = "Clear Sky"
)

// MaxDailyDays bounds every daily forecast the service returns.
const MaxDailyDays = 7

// ForecastEntry is one provider forecast slot (3-hourly or hourly).
// Providers that report a single temperature set TempMin and TempMax to Temp.
type ForecastEntry struct {
	Time        time.Time
	Temp        float64
	TempMin     float64
	TempMax     float64
	Pop         float64 // probability 0..1
	Description string
	Icon        string // app icon
}

func (e ForecastEntry) bounds() (lo, hi float64) {
	lo = math.Min(e.Temp, math.Min(e.TempMin, e.TempMax))
	hi = math.Max(e.Temp, math.Max(e.TempMin, e.TempMax))
	return lo, hi
}

type dayBucket struct {
	day     time.Time
	entries []ForecastEntry
}

// AggregateDaily groups entries by calendar date in loc and summarizes each day:
// min/max temperature over all entries, the highest precipitation chance, and
// the description and icon of the middle midday entry (first entry when the day
// has no midday slots). At most maxDays days are returned in date order.
func AggregateDaily(entries []ForecastEntry, loc *time.Location, maxDays int) []models.DailyForecast {
	if len(entries) == 0 {
		return []models.DailyForecast{}
	}
	if loc == nil {
		loc = time.UTC
	}

	sorted := make([]ForecastEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	var buckets []*dayBucket
	byDate := make(map[string]*dayBucket)
	for _, e := range sorted {
		local := e.Time.In(loc)
		key := local.Format(dateLayout)
		b, ok := byDate[key]
		if !ok {
			b = &dayBucket{day: local}
			byDate[key] = b
			buckets = append(buckets, b)
		}
		b.entries = append(b.entries, e)
	}

	if maxDays > 0 && len(buckets) > maxDays {
		buckets = buckets[:maxDays]
	}

	out := make([]models.DailyForecast, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, summarizeDay(b, loc))
	}
	return out
}

func summarizeDay(b *dayBucket, loc *time.Location) models.DailyForecast {
	lo, hi := math.Inf(1), math.Inf(-1)
	maxPop := 0.0
	var midday []ForecastEntry
	for _, e := range b.entries {
		eLo, eHi := e.bounds()
		lo = math.Min(lo, eLo)
		hi = math.Max(hi, eHi)
		if e.Pop > maxPop {
			maxPop = e.Pop
		}
		if h := e.Time.In(loc).Hour(); h >= middayStart && h <= middayEnd {
			midday = append(midday, e)
		}
	}

	rep := b.entries[0]
	if len(midday) > 0 {
		rep = midday[len(midday)/2]
	}
	return Daily(b.day, loc, lo, hi, PrecipPercent(maxPop), rep.Description, rep.Icon)
}

// Daily builds a DailyForecast for the calendar day containing day in loc.
// lo and hi are swapped if reversed and the precipitation chance is clamped,
// so providers that report daily values directly share the same guarantees.
func Daily(day time.Time, loc *time.Location, lo, hi float64, precipPercent int, description, icon string) models.DailyForecast {
	if loc == nil {
		loc = time.UTC
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if description == "" {
		description = fallbackDescription
	}
	if !IsAppIcon(icon) {
		icon = Icon(icon)
	}
	local := day.In(loc)
	return models.DailyForecast{
		Date:                local.Format(dateLayout),
		DayName:             local.Format("Mon"),
		MinTemp:             Round1(lo),
		MaxTemp:             Round1(hi),
		Description:         description,
		Icon:                icon,
		PrecipitationChance: ClampPercent(float64(precipPercent)),
	}
}

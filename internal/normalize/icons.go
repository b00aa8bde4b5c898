package normalize

import "strings"

// App icon names rendered by the dashboard.
const (
	IconSun            = "Sun"
	IconMoon           = "Moon"
	IconCloudSun       = "CloudSun"
	IconCloudMoon      = "CloudMoon"
	IconCloud          = "Cloud"
	IconCloudy         = "Cloudy"
	IconCloudDrizzle   = "CloudDrizzle"
	IconCloudRain      = "CloudRain"
	IconCloudLightning = "CloudLightning"
	IconCloudSnow      = "CloudSnow"
	IconCloudFog       = "CloudFog"
	IconWind           = "Wind"
)

// DefaultIcon is returned for any provider code that has no mapping.
const DefaultIcon = IconCloud

var appIcons = []string{
	IconSun, IconMoon, IconCloudSun, IconCloudMoon, IconCloud, IconCloudy,
	IconCloudDrizzle, IconCloudRain, IconCloudLightning, IconCloudSnow, IconCloudFog, IconWind,
}

// OpenWeatherMap codes with a day/night distinction.
var openWeatherIcons = map[string]string{
	"01d": IconSun,
	"01n": IconMoon,
	"02d": IconCloudSun,
	"02n": IconCloudMoon,
}

// OpenWeatherMap code families, keyed by the two-digit prefix.
var openWeatherFamilies = map[string]string{
	"01": IconSun,
	"02": IconCloudSun,
	"03": IconCloud,
	"04": IconCloudy,
	"09": IconCloudDrizzle,
	"10": IconCloudRain,
	"11": IconCloudLightning,
	"13": IconCloudSnow,
	"50": IconCloudFog,
}

// Visual Crossing icon set ("icons1" / "icons2").
var visualCrossingIcons = map[string]string{
	"clear-day":             IconSun,
	"clear-night":           IconMoon,
	"partly-cloudy-day":     IconCloudSun,
	"partly-cloudy-night":   IconCloudMoon,
	"cloudy":                IconCloudy,
	"fog":                   IconCloudFog,
	"wind":                  IconWind,
	"rain":                  IconCloudRain,
	"showers-day":           IconCloudDrizzle,
	"showers-night":         IconCloudDrizzle,
	"thunder":               IconCloudLightning,
	"thunder-rain":          IconCloudLightning,
	"thunder-showers-day":   IconCloudLightning,
	"thunder-showers-night": IconCloudLightning,
	"snow":                  IconCloudSnow,
	"snow-showers-day":      IconCloudSnow,
	"snow-showers-night":    IconCloudSnow,
	"sleet":                 IconCloudSnow,
	"rain-snow":             IconCloudSnow,
	"rain-snow-showers-day": IconCloudSnow,
	"hail":                  IconCloudSnow,
}

// Icon maps a provider icon code to an app icon. The mapping is total: exact
// OpenWeatherMap codes first, then Visual Crossing names, then the
// OpenWeatherMap family prefix, then DefaultIcon.
func Icon(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if icon, ok := openWeatherIcons[c]; ok {
		return icon
	}
	if icon, ok := visualCrossingIcons[c]; ok {
		return icon
	}
	if len(c) >= 2 {
		if icon, ok := openWeatherFamilies[c[:2]]; ok {
			return icon
		}
	}
	return DefaultIcon
}

// AppIcons returns every icon name Icon can produce.
func AppIcons() []string {
	out := make([]string, len(appIcons))
	copy(out, appIcons)
	return out
}

// IsAppIcon reports whether name is one of the app icons.
func IsAppIcon(name string) bool {
	for _, icon := range appIcons {
		if icon == name {
			return true
		}
	}
	return false
}

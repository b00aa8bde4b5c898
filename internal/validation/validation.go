package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooShort is returned when location length is below the minimum.
var ErrLocationTooShort = errors.New("location too short")

// ErrLocationTooLong is returned when location length exceeds the maximum.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when location contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ErrInvalidCoordinates is returned for missing, malformed or out of range lat/lng.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// ErrInvalidRequest wraps struct validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters: letters (Unicode), digits, space, comma,
// hyphen, period, apostrophe.
// Returns the trimmed string or an error suitable for 400 INVALID_LOCATION responses.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// isAllowedLocationRune returns true for letters (Unicode), digits and the
// punctuation that appears in place names ("St. John's", "Washington D.C.").
func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateCoordinates checks latitude in [-90, 90] and longitude in [-180, 180].
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return fmt.Errorf("%w: NaN", ErrInvalidCoordinates)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinates, lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinates, lng)
	}
	return nil
}

// ParseCoordinates parses query-string coordinates and validates their range.
func ParseCoordinates(latStr, lngStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: lat %q", ErrInvalidCoordinates, latStr)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: lng %q", ErrInvalidCoordinates, lngStr)
	}
	if err := ValidateCoordinates(lat, lng); err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct validates v's `validate` tags. Failures wrap ErrInvalidRequest and
// list each offending field.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

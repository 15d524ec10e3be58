package validation

import (
	"errors"
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/kjstillabower/weather-dashboard-api/internal/models"
)

// ErrCoordinatesRequired is returned when lat or lon is missing or blank.
var ErrCoordinatesRequired = errors.New("latitude and longitude required")

// ErrCoordinatesInvalid is returned when lat or lon is not a finite number in range.
var ErrCoordinatesInvalid = errors.New("invalid latitude or longitude")

// ValidateCoordinates trims both values, requires them to be present, and
// checks they parse as latitude [-90, 90] and longitude [-180, 180].
// The trimmed text is returned unchanged so cache keys follow the request.
func ValidateCoordinates(lat, lon string) (models.Coordinates, error) {
	lat = strings.TrimSpace(lat)
	lon = strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return models.Coordinates{}, ErrCoordinatesRequired
	}
	if !inRange(lat, 90) || !inRange(lon, 180) {
		return models.Coordinates{}, ErrCoordinatesInvalid
	}
	return models.Coordinates{Lat: lat, Lon: lon}, nil
}

func inRange(s string, limit float64) bool {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= -limit && v <= limit
}

// NormalizeIP returns the canonical text of an IPv4 or IPv6 address, dropping
// any zone. Anything else (hostnames, paths, empty) is rejected so it never
// reaches a provider URL.
func NormalizeIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.WithZone("").Unmap().String(), true
}

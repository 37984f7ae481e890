package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pmr_assist/backend/internal/models"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, displayName string, confidence float64, err error)
}

// DefaultCountry is appended to meeting addresses that do not name one.
const DefaultCountry = "France"

func BuildGeocodeQuery(address string, country string) string {
	address = strings.TrimSpace(address)
	country = strings.TrimSpace(country)
	parts := []string{}
	if address != "" {
		parts = append(parts, address)
	}
	if country != "" && !strings.Contains(strings.ToLower(address), strings.ToLower(country)) {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

// ResolveMeetingPoint turns a mission's meeting address into coordinates.
func ResolveMeetingPoint(ctx context.Context, g Geocoder, address string) (models.GeoPoint, error) {
	query := BuildGeocodeQuery(address, DefaultCountry)
	if strings.TrimSpace(address) == "" {
		return models.GeoPoint{}, ErrNotFound
	}
	lat, lon, _, _, err := g.Geocode(ctx, query)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("geocode %q: %w", query, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return models.GeoPoint{}, fmt.Errorf("geocode %q: coordinates out of range (%f, %f)", query, lat, lon)
	}
	return models.GeoPoint{Lat: lat, Lon: lon}, nil
}

package utils

import (
	"math"

	"github.com/pmr_assist/backend/internal/models"
)

const earthRadiusKm = 6371.0

func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	lat1R := degreesToRadians(lat1)
	lat2R := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1R)*math.Cos(lat2R)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// DistanceKm returns the great-circle distance and false when either point
// is missing.
func DistanceKm(a, b *models.GeoPoint) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon), true
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

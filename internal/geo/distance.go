package geo

import (
	"math"

	"github.com/example/raksha/internal/sos/domain"
)

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance between two points in meters
// using the haversine formula on a spherical Earth. It is symmetric and
// returns 0 for coincident points. The square-root argument is clamped so
// antipodal inputs never produce NaN.
func Distance(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlng := toRadians(b.Lng - a.Lng)

	sinDlat := math.Sin(dlat / 2)
	sinDlng := math.Sin(dlng / 2)
	h := sinDlat*sinDlat + math.Cos(lat1)*math.Cos(lat2)*sinDlng*sinDlng
	if h < 0 {
		h = 0
	}
	if h > 1 {
		h = 1
	}
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// WithinRadius reports whether b falls inside the alert radius centred on a.
// The boundary is inclusive.
func WithinRadius(a, b domain.GeoPoint, radiusMeters float64) bool {
	return Distance(a, b) <= radiusMeters
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

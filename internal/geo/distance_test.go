package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/raksha/internal/geo"
	"github.com/example/raksha/internal/sos/domain"
)

func TestDistanceSymmetricAndZero(t *testing.T) {
	a := domain.GeoPoint{Lat: 53.3498, Lng: -6.2603}
	b := domain.GeoPoint{Lat: 51.8985, Lng: -8.4756}

	require.Equal(t, geo.Distance(a, b), geo.Distance(b, a))
	require.Zero(t, geo.Distance(a, a))
	require.Zero(t, geo.Distance(domain.GeoPoint{}, domain.GeoPoint{}))
}

func TestDistanceDublinCork(t *testing.T) {
	dublin := domain.GeoPoint{Lat: 53.3498, Lng: -6.2603}
	cork := domain.GeoPoint{Lat: 51.8985, Lng: -8.4756}

	d := geo.Distance(dublin, cork)
	require.InDelta(t, 220000, d, 5000, "Dublin-Cork should be roughly 220km, got %f", d)
}

func TestDistanceAntipodalNoNaN(t *testing.T) {
	a := domain.GeoPoint{Lat: 0, Lng: 0}
	b := domain.GeoPoint{Lat: 0, Lng: 180}

	d := geo.Distance(a, b)
	require.False(t, math.IsNaN(d))
	require.InDelta(t, math.Pi*6371000, d, 1)
}

func TestWithinRadiusBoundaryInclusive(t *testing.T) {
	origin := domain.GeoPoint{Lat: 0, Lng: 0}

	// Point due north at the alert radius along the meridian.
	boundary := domain.GeoPoint{Lat: 2999.9999 / 6371000.0 * 180.0 / math.Pi, Lng: 0}
	require.InDelta(t, 3000, geo.Distance(origin, boundary), 0.001)
	require.True(t, geo.WithinRadius(origin, boundary, domain.RadiusMeters))

	outside := domain.GeoPoint{Lat: 3001.0 / 6371000.0 * 180.0 / math.Pi, Lng: 0}
	require.False(t, geo.WithinRadius(origin, outside, domain.RadiusMeters))
}

func TestDistanceMonotonicWithSeparation(t *testing.T) {
	origin := domain.GeoPoint{Lat: 53.3498, Lng: -6.2603}
	prev := 0.0
	for _, offset := range []float64{0.01, 0.05, 0.1, 0.5, 1.0} {
		d := geo.Distance(origin, domain.GeoPoint{Lat: origin.Lat + offset, Lng: origin.Lng})
		require.Greater(t, d, prev)
		prev = d
	}
}

package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePoints = []Point{
	{Lat: 0, Lon: 0},
	{Lat: 27.0, Lon: -82.0},
	{Lat: 47.333831, Lon: 8.548232},
	{Lat: -33.8688, Lon: 151.2093},
	{Lat: 51.5074, Lon: -0.1278},
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 0},
			want: 0,
		},
		{
			name: "London to Paris",
			p1:   Point{Lat: 51.5074, Lon: -0.1278},
			p2:   Point{Lat: 48.8566, Lon: 2.3522},
			want: 344000, // Approx 344km
		},
		{
			name: "Equator 1 degree",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 1},
			want: 111195, // R=6371km
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			// 1% margin; earth radius choice alone moves results by ~0.1%
			assert.InDelta(t, tt.want, got, tt.want*0.01)
		})
	}
}

func TestDistanceFeet_Properties(t *testing.T) {
	for _, a := range samplePoints {
		assert.Zero(t, DistanceFeet(a, a), "distance(a,a) for %s", a)
		for _, b := range samplePoints {
			assert.InDelta(t, DistanceFeet(a, b), DistanceFeet(b, a), 1e-6, "symmetry %s %s", a, b)
		}
	}
}

func TestProject_ZeroDistance(t *testing.T) {
	for _, a := range samplePoints {
		for h := 0.0; h < 360; h += 45 {
			got := Project(a, 0, h)
			assert.InDelta(t, a.Lat, got.Lat, 1e-9)
			assert.InDelta(t, a.Lon, got.Lon, 1e-9)
		}
	}
}

func TestProject_RoundTrip(t *testing.T) {
	// Project uses the equatorial radius and DistanceFeet the mean radius, so the
	// round trip carries a fixed ~0.11% scale error.
	for _, a := range samplePoints[1:] {
		for _, d := range []float64{1, 10, 100, 1000, 10000} {
			for h := 0.0; h < 360; h += 30 {
				got := DistanceFeet(a, Project(a, d, h))
				assert.InEpsilon(t, d, got, 0.002, "start=%s d=%v h=%v", a, d, h)
			}
		}
	}
}

func TestProject_NorthFromTampaBay(t *testing.T) {
	start := Point{Lat: 27.0, Lon: -82.0}
	got := Project(start, 100, 0)

	assert.Greater(t, got.Lat, start.Lat)
	assert.InDelta(t, start.Lon, got.Lon, 1e-4)
	// 30.48 m north on a 6378137 m sphere.
	assert.InDelta(t, 27.000273808, got.Lat, 1e-8)
	assert.True(t, got.Valid())
}

func TestBearing(t *testing.T) {
	start := Point{Lat: 27.0, Lon: -82.0}
	for _, h := range []float64{0, 45, 90, 180, 270, 359} {
		got := Bearing(start, Project(start, 500, h))
		assert.Less(t, CircularDiff(h, got), 0.01, "heading %v", h)
	}
}

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{-1, 359},
		{725, 5},
		{-725, 355},
		{359.5, 359.5},
		{-1e-18, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeHeading(tt.in), 1e-9, "in=%v", tt.in)
	}

	for x := -1000.0; x <= 1000; x += 7.3 {
		n := NormalizeHeading(x)
		require.GreaterOrEqual(t, n, 0.0)
		require.Less(t, n, 360.0)
	}
}

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, -90.0, NormalizeAngle(270))
	assert.Equal(t, 90.0, NormalizeAngle(-270))
	assert.Equal(t, 180.0, NormalizeAngle(180))
}

func TestCircularDiff(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{359, 1, 2},
		{1, 359, 2},
		{10, 10, 0},
		{0, 180, 180},
		{-10, 10, 20},
		{90, 450, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, CircularDiff(tt.a, tt.b), 1e-9, "a=%v b=%v", tt.a, tt.b)
	}
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, Point{Lat: 90, Lon: -180}.Valid())
	assert.False(t, Point{Lat: 90.1, Lon: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lon: math.Inf(1)}.Valid())
}

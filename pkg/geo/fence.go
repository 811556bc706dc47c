package geo

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrOutsideFence is returned when a destination lies outside the operating area.
var ErrOutsideFence = errors.New("destination outside geofence")

// Fence is the permitted operating area built from GeoJSON polygons.
// A nil or empty Fence permits every point.
type Fence struct {
	areas orb.MultiPolygon
	bound orb.Bound
}

// LoadFence reads a GeoJSON FeatureCollection and keeps its polygon features.
func LoadFence(path string) (*Fence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geofence %s: %w", path, err)
	}
	return ParseFence(data)
}

// ParseFence builds a Fence from raw GeoJSON.
func ParseFence(data []byte) (*Fence, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geofence: %w", err)
	}

	f := &Fence{}
	for _, feat := range fc.Features {
		switch g := feat.Geometry.(type) {
		case orb.Polygon:
			f.areas = append(f.areas, g)
		case orb.MultiPolygon:
			f.areas = append(f.areas, g...)
		}
	}
	if len(f.areas) == 0 {
		return nil, errors.New("geofence contains no polygons")
	}
	f.bound = f.areas.Bound()
	return f, nil
}

// Contains reports whether p lies inside the fence.
func (f *Fence) Contains(p Point) bool {
	if f == nil || len(f.areas) == 0 {
		return true
	}
	pt := orb.Point{p.Lon, p.Lat}
	if !f.bound.Contains(pt) {
		return false
	}
	for _, poly := range f.areas {
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}

// Check returns ErrOutsideFence when p is not inside the fence.
func (f *Fence) Check(p Point) error {
	if f.Contains(p) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOutsideFence, p)
}

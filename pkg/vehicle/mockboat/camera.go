package mockboat

import (
	"context"
	"math"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/steering"
)

// GateCamera is a forward-looking camera on the simulated boat that sees a red and a green
// buoy. It implements steering.CentroidSource.
type GateCamera struct {
	boat       *Boat
	red, green geo.Point
	fov        float64 // degrees
	width      int     // pixels
	rangeM     float64
}

// NewGateCamera places a gate distanceM ahead of the boat's current pose, widthM wide, red
// to port and green to starboard.
func NewGateCamera(b *Boat, distanceM, widthM, fovDeg float64, frameWidth int) *GateCamera {
	b.mu.Lock()
	pos, hdg := b.pos, b.heading
	b.mu.Unlock()

	centre := geo.DestinationPoint(pos, distanceM, hdg)
	return &GateCamera{
		boat:   b,
		red:    geo.DestinationPoint(centre, widthM/2, hdg-90),
		green:  geo.DestinationPoint(centre, widthM/2, hdg+90),
		fov:    fovDeg,
		width:  frameWidth,
		rangeM: 4 * distanceM,
	}
}

// Buoys returns the red and green buoy positions.
func (c *GateCamera) Buoys() (red, green geo.Point) {
	return c.red, c.green
}

// Centroids projects each buoy onto the image row by its bearing relative to the bow.
// Buoys behind the camera's field of view or out of range are not seen.
func (c *GateCamera) Centroids(ctx context.Context) (red, green *steering.Pixel, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	c.boat.mu.Lock()
	pos, hdg := c.boat.pos, c.boat.heading
	c.boat.mu.Unlock()

	return c.project(pos, hdg, c.red), c.project(pos, hdg, c.green), nil
}

func (c *GateCamera) project(pos geo.Point, hdg float64, buoy geo.Point) *steering.Pixel {
	if geo.Distance(pos, buoy) > c.rangeM {
		return nil
	}
	rel := geo.NormalizeAngle(geo.Bearing(pos, buoy) - hdg)
	half := c.fov / 2
	if math.Abs(rel) > half {
		return nil
	}
	x := float64(c.width)/2 + rel/half*float64(c.width)/2
	return &steering.Pixel{X: int(math.Round(x)), Y: 0}
}

var _ steering.CentroidSource = (*GateCamera)(nil)

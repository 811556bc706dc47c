// Package steering turns a vision heading signal into discrete guidance corrections.
package steering

import (
	"context"
	"fmt"
	"sync"
)

// Pixel is an image coordinate.
type Pixel struct {
	X int
	Y int
}

// DetectionResult is one frame's view of the gate. A nil centroid means that buoy was not
// seen.
type DetectionResult struct {
	Red      *Pixel
	Green    *Pixel
	Midpoint *Pixel
	// DeltaPixels is the signed offset of the target from the frame centre; positive is right.
	DeltaPixels int
}

// Lost reports whether neither buoy was seen. DeltaPixels is 0 in that case, which the
// adapter treats as "go straight".
func (d DetectionResult) Lost() bool {
	return d.Red == nil && d.Green == nil
}

// Detector produces a steering signal. ok is false when there is no signal at all.
type Detector interface {
	Detect(ctx context.Context) (res DetectionResult, ok bool, err error)
}

// CentroidSource finds the red and green buoy centroids in the current frame.
type CentroidSource interface {
	Centroids(ctx context.Context) (red, green *Pixel, err error)
}

// GateDetector steers between a red and a green buoy.
type GateDetector struct {
	src        CentroidSource
	frameWidth int
}

// NewGateDetector creates a detector for frames frameWidth pixels wide.
func NewGateDetector(src CentroidSource, frameWidth int) *GateDetector {
	return &GateDetector{src: src, frameWidth: frameWidth}
}

// Detect aims at the midpoint of the gate. Unless both buoys are seen the delta is 0 and
// the boat holds its course; with none the result is lost.
func (g *GateDetector) Detect(ctx context.Context) (DetectionResult, bool, error) {
	red, green, err := g.src.Centroids(ctx)
	if err != nil {
		return DetectionResult{}, false, fmt.Errorf("centroids: %w", err)
	}

	res := DetectionResult{Red: red, Green: green}
	if red == nil || green == nil {
		return res, true, nil
	}
	res.Midpoint = &Pixel{X: (red.X + green.X) / 2, Y: (red.Y + green.Y) / 2}
	res.DeltaPixels = res.Midpoint.X - g.frameWidth/2
	return res, true, nil
}

// ReplayDetector plays back a fixed sequence of results, then reports no signal.
type ReplayDetector struct {
	mu      sync.Mutex
	results []DetectionResult
	pos     int
}

// NewReplayDetector creates a detector that returns results in order.
func NewReplayDetector(results ...DetectionResult) *ReplayDetector {
	return &ReplayDetector{results: results}
}

// Deltas builds a replay of found targets at the given pixel offsets.
func Deltas(deltas ...int) *ReplayDetector {
	results := make([]DetectionResult, len(deltas))
	for i, d := range deltas {
		mid := Pixel{X: d}
		results[i] = DetectionResult{Midpoint: &mid, Red: &mid, DeltaPixels: d}
	}
	return NewReplayDetector(results...)
}

func (r *ReplayDetector) Detect(ctx context.Context) (DetectionResult, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return DetectionResult{}, false, err
	}
	if r.pos >= len(r.results) {
		return DetectionResult{}, false, nil
	}
	res := r.results[r.pos]
	r.pos++
	return res, true, nil
}

// Remaining returns how many results are left to replay.
func (r *ReplayDetector) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results) - r.pos
}

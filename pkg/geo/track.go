package geo

import "sync"

// TrackBuffer keeps a rolling window of fixes and derives course over ground from it.
// Fixes closer than minSpacing meters to the newest kept fix are dropped so a drifting,
// nearly stationary hull does not produce a random course.
type TrackBuffer struct {
	mu         sync.RWMutex
	samples    []Point
	windowSize int
	minSpacing float64
}

// NewTrackBuffer creates a buffer holding up to windowSize fixes.
func NewTrackBuffer(windowSize int, minSpacingMeters float64) *TrackBuffer {
	if windowSize < 2 {
		windowSize = 2
	}
	return &TrackBuffer{
		windowSize: windowSize,
		minSpacing: minSpacingMeters,
	}
}

// Push records p and returns the course over ground, or fallback while fewer than two
// distinct fixes are known.
func (b *TrackBuffer) Push(p Point, fallback float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.samples); n > 0 && Distance(b.samples[n-1], p) < b.minSpacing {
		return b.courseLocked(fallback)
	}

	b.samples = append(b.samples, p)
	if len(b.samples) > b.windowSize {
		b.samples = b.samples[1:]
	}
	return b.courseLocked(fallback)
}

// Course returns the current course over ground without adding a fix.
func (b *TrackBuffer) Course(fallback float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.courseLocked(fallback)
}

func (b *TrackBuffer) courseLocked(fallback float64) float64 {
	if len(b.samples) < 2 {
		return fallback
	}
	return Bearing(b.samples[0], b.samples[len(b.samples)-1])
}

// Reset clears the buffer history.
func (b *TrackBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}

// Package store persists mission sessions, events and telemetry samples.
package store

import (
	"context"
	"time"

	"boatpilot/pkg/geo"
)

// Event kinds written by the supervisor, guidance engine and failsafe layer.
const (
	EventState     = "state"
	EventGuidance  = "guidance"
	EventFailsafe  = "failsafe"
	EventDetection = "detection"
)

// Event is one recorded mission event.
type Event struct {
	ID         int64
	SessionID  string
	Kind       string
	Detail     string
	RecordedAt time.Time
}

// Sample is one recorded telemetry snapshot.
type Sample struct {
	Position   geo.Point `msgpack:"p"`
	Heading    float64   `msgpack:"h"`
	State      string    `msgpack:"s"`
	RecordedAt time.Time `msgpack:"t"`
}

// Session describes one supervised mission.
type Session struct {
	ID        string
	Address   string
	Home      geo.Point
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   string
}

// Recorder is what the mission components need to write history.
type Recorder interface {
	StartSession(ctx context.Context, address string, home geo.Point) (string, error)
	EndSession(ctx context.Context, sessionID, outcome string) error
	RecordEvent(ctx context.Context, sessionID, kind, detail string) error
	RecordSample(ctx context.Context, sessionID string, s Sample) error
}

// Reader is what the ground-station API needs to read history.
type Reader interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	RecentEvents(ctx context.Context, sessionID string, limit int) ([]Event, error)
	Samples(ctx context.Context, sessionID string) ([]Sample, error)
}

// Package vehicle defines the link to the flight controller driving the boat.
package vehicle

import (
	"context"
	"errors"

	"boatpilot/pkg/geo"
)

var (
	// ErrNotConnected is returned when a link action requires a connection.
	ErrNotConnected = errors.New("vehicle not connected")
	// ErrOffboardRejected is returned when the controller refuses offboard mode.
	ErrOffboardRejected = errors.New("offboard mode rejected")
	// ErrCommandDenied is returned when the controller refuses a command.
	ErrCommandDenied = errors.New("command denied")
)

// Health is the subset of controller health needed before arming.
type Health struct {
	GlobalPositionOK bool
	HomePositionOK   bool
}

// Locked reports whether both position estimates are usable.
func (h Health) Locked() bool {
	return h.GlobalPositionOK && h.HomePositionOK
}

// GlobalSetpoint is a position target with yaw in degrees.
type GlobalSetpoint struct {
	Lat float64
	Lon float64
	Alt float64
	Yaw float64
}

// BodyVelocity is a velocity target in the vehicle body frame (m/s, deg/s).
type BodyVelocity struct {
	Forward float64
	Right   float64
	Down    float64
	YawRate float64
}

// Link is the capability set of the flight-controller connection.
// Every call is fallible; callers must not ignore returned errors.
type Link interface {
	// Connect starts connecting to the controller at address. It does not wait for the
	// handshake; poll ConnectionState for that.
	Connect(ctx context.Context, address string) error
	// ConnectionState reports whether the controller handshake has completed.
	ConnectionState(ctx context.Context) (bool, error)

	Position(ctx context.Context) (geo.Point, error)
	Heading(ctx context.Context) (float64, error)
	Health(ctx context.Context) (Health, error)
	Armed(ctx context.Context) (bool, error)
	FlightMode(ctx context.Context) (FlightMode, error)

	Arm(ctx context.Context) error
	Disarm(ctx context.Context) error
	Land(ctx context.Context) error
	// Kill cuts the motors immediately regardless of state.
	Kill(ctx context.Context) error
	ReturnToLaunch(ctx context.Context) error

	StartOffboard(ctx context.Context) error
	StopOffboard(ctx context.Context) error
	IsOffboardActive(ctx context.Context) (bool, error)

	SetPositionGlobal(ctx context.Context, sp GlobalSetpoint) error
	SetVelocityBody(ctx context.Context, v BodyVelocity) error

	// Close releases resources associated with the link.
	Close() error
}

// Telemetry is a value snapshot of the boat's position and heading.
type Telemetry struct {
	Position geo.Point
	Heading  float64 // Degrees true
}

// Snapshot reads position and heading as one value copy.
func Snapshot(ctx context.Context, l Link) (Telemetry, error) {
	pos, err := l.Position(ctx)
	if err != nil {
		return Telemetry{}, err
	}
	hdg, err := l.Heading(ctx)
	if err != nil {
		return Telemetry{}, err
	}
	return Telemetry{Position: pos, Heading: hdg}, nil
}

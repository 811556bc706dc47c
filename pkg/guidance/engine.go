// Package guidance drives the boat through closed-loop maneuvers: each operation sends a
// setpoint and polls telemetry until the boat converges on it.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/logging"
	"boatpilot/pkg/store"
	"boatpilot/pkg/supervisor"
	"boatpilot/pkg/vehicle"
)

// Defaults for the convergence loops.
const (
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultTurnErrorBound   = 1.0 // degrees
	DefaultForwardBound     = 1.0 // feet
	DefaultGotoBound        = 5.0 // feet
	DefaultHomeBound        = 5.0 // feet
	DefaultHeadingTolerance = 5.0 // degrees, secondary check for forward/goto
)

var (
	// ErrNotOffboard is returned when a maneuver is requested while the controller is not
	// following external setpoints.
	ErrNotOffboard = errors.New("vehicle not in offboard mode")
	// ErrNoHome is returned by ReturnHome before a home coordinate is recorded.
	ErrNoHome = errors.New("home position not recorded")
)

// Supervisor is the read side of the readiness session.
type Supervisor interface {
	State() supervisor.State
	Home() (geo.Point, bool)
	Record(kind, detail string)
}

// Config holds loop timing and tolerances.
type Config struct {
	PollInterval     time.Duration
	HeadingTolerance float64
}

// Engine runs the maneuvers. It never changes the session state.
type Engine struct {
	session Supervisor
	link    vehicle.Link
	cfg     Config
	logger  *slog.Logger
	fence   *geo.Fence

	mu      sync.Mutex
	lastCmd time.Time
	now     func() time.Time
}

// New creates an engine over a session and the link it supervises.
func New(session Supervisor, link vehicle.Link, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HeadingTolerance <= 0 {
		cfg.HeadingTolerance = DefaultHeadingTolerance
	}
	return &Engine{
		session: session,
		link:    link,
		cfg:     cfg,
		logger:  slog.Default().With("component", "guidance"),
		now:     time.Now,
	}
}

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	e.logger = l
}

// SetFence restricts Forward and Goto destinations to an operating area.
func (e *Engine) SetFence(f *geo.Fence) {
	e.fence = f
}

// LastCommand returns when the last maneuver setpoint was issued, zero if none.
func (e *Engine) LastCommand() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCmd
}

func (e *Engine) markCommand() {
	e.mu.Lock()
	e.lastCmd = e.now()
	e.mu.Unlock()
}

func (e *Engine) requireOffboard(op string) error {
	if st := e.session.State(); st != supervisor.StateOffboardActive {
		e.logger.Error("Refusing maneuver", "op", op, "state", st)
		return fmt.Errorf("%s: %w (state %s)", op, ErrNotOffboard, st)
	}
	return nil
}

// Turn rotates in place by deltaDeg until the heading is within errorBoundDeg of the target.
func (e *Engine) Turn(ctx context.Context, deltaDeg, errorBoundDeg float64) error {
	if err := e.requireOffboard("turn"); err != nil {
		return err
	}
	if errorBoundDeg <= 0 {
		errorBoundDeg = DefaultTurnErrorBound
	}

	tel, err := vehicle.Snapshot(ctx, e.link)
	if err != nil {
		return fmt.Errorf("turn: %w", err)
	}
	target := geo.NormalizeHeading(tel.Heading + deltaDeg)
	sp := vehicle.GlobalSetpoint{Lat: tel.Position.Lat, Lon: tel.Position.Lon, Yaw: target}

	e.logger.Debug("Turning", "from", tel.Heading, "to", target)
	if err := e.link.SetPositionGlobal(ctx, sp); err != nil {
		return fmt.Errorf("turn: %w", err)
	}
	e.markCommand()

	for {
		hdg, err := e.link.Heading(ctx)
		if err != nil {
			return fmt.Errorf("turn: %w", err)
		}
		if geo.CircularDiff(hdg, target) <= errorBoundDeg {
			e.done("turn", fmt.Sprintf("heading %.1f", hdg))
			return nil
		}
		logging.Trace(e.logger, "Turn progress", "heading", hdg, "target", target)
		if err := e.sleep(ctx); err != nil {
			return fmt.Errorf("turn: %w", err)
		}
		// Offboard drops out when setpoints stop arriving
		if err := e.link.SetPositionGlobal(ctx, sp); err != nil {
			return fmt.Errorf("turn: %w", err)
		}
		e.markCommand()
	}
}

// Forward moves distanceFeet along the current heading plus deltaDeg.
func (e *Engine) Forward(ctx context.Context, distanceFeet, deltaDeg, errorBoundFeet float64) error {
	if err := e.requireOffboard("forward"); err != nil {
		return err
	}
	if errorBoundFeet <= 0 {
		errorBoundFeet = DefaultForwardBound
	}

	tel, err := vehicle.Snapshot(ctx, e.link)
	if err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	target := geo.NormalizeHeading(tel.Heading + deltaDeg)
	dest := geo.Project(tel.Position, distanceFeet, target)
	if err := e.fence.Check(dest); err != nil {
		e.logger.Error("Forward destination rejected", "dest", dest, "error", err)
		return fmt.Errorf("forward: %w", err)
	}

	e.logger.Debug("Moving forward", "feet", distanceFeet, "heading", target, "dest", dest)
	return e.converge(ctx, "forward", dest, target, errorBoundFeet)
}

// Goto moves to dest. The heading target is the current heading plus deltaDeg, fixed when
// the call starts.
func (e *Engine) Goto(ctx context.Context, dest geo.Point, deltaDeg, errorBoundFeet float64) error {
	if err := e.requireOffboard("goto"); err != nil {
		return err
	}
	if !dest.Valid() {
		return fmt.Errorf("goto: invalid destination %s", dest)
	}
	if errorBoundFeet <= 0 {
		errorBoundFeet = DefaultGotoBound
	}
	if err := e.fence.Check(dest); err != nil {
		e.logger.Error("Goto destination rejected", "dest", dest, "error", err)
		return fmt.Errorf("goto: %w", err)
	}

	hdg, err := e.link.Heading(ctx)
	if err != nil {
		return fmt.Errorf("goto: %w", err)
	}
	target := geo.NormalizeHeading(hdg + deltaDeg)

	e.logger.Debug("Going to", "dest", dest, "heading", target)
	return e.converge(ctx, "goto", dest, target, errorBoundFeet)
}

// converge holds a position setpoint until both distance and heading are in tolerance.
// The setpoint is refreshed every poll so the controller stays in offboard.
func (e *Engine) converge(ctx context.Context, op string, dest geo.Point, heading, boundFeet float64) error {
	sp := vehicle.GlobalSetpoint{Lat: dest.Lat, Lon: dest.Lon, Yaw: heading}
	if err := e.link.SetPositionGlobal(ctx, sp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	e.markCommand()

	for {
		tel, err := vehicle.Snapshot(ctx, e.link)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		dist := geo.DistanceFeet(dest, tel.Position)
		hdgErr := geo.CircularDiff(tel.Heading, heading)
		if dist <= boundFeet && hdgErr <= e.cfg.HeadingTolerance {
			e.done(op, fmt.Sprintf("%.1f ft from %s", dist, dest))
			return nil
		}
		logging.Trace(e.logger, "Converging", "op", op, "distance_ft", dist, "heading_err", hdgErr)

		if err := e.sleep(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := e.link.SetPositionGlobal(ctx, sp); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
}

// SetSpeed commands a body-frame forward speed and yaw rate for duration, then stops.
// The loop ends on elapsed time only.
func (e *Engine) SetSpeed(ctx context.Context, speedMps float64, duration time.Duration, yawRateDeg float64) error {
	if err := e.requireOffboard("set speed"); err != nil {
		return err
	}

	v := vehicle.BodyVelocity{Forward: speedMps, YawRate: yawRateDeg}
	start := e.now()
	e.logger.Debug("Setting speed", "mps", speedMps, "duration", duration, "yaw_rate", yawRateDeg)
	e.markCommand()

	for e.now().Sub(start) <= duration {
		if err := e.link.SetVelocityBody(ctx, v); err != nil {
			return fmt.Errorf("set speed: %w", err)
		}
		if err := e.sleep(ctx); err != nil {
			e.stop()
			return fmt.Errorf("set speed: %w", err)
		}
	}

	if err := e.link.SetVelocityBody(ctx, vehicle.BodyVelocity{}); err != nil {
		return fmt.Errorf("set speed: stop: %w", err)
	}
	e.done("set speed", fmt.Sprintf("%.1f m/s for %s", speedMps, duration))
	return nil
}

// stop zeroes velocity after a cancelled speed command so the boat does not keep running.
func (e *Engine) stop() {
	if err := e.link.SetVelocityBody(context.Background(), vehicle.BodyVelocity{}); err != nil {
		e.logger.Warn("Failed to zero velocity", "error", err)
	}
}

// ReturnHome hands navigation to the controller's return-to-launch and waits until the
// boat is within errorBoundFeet of home. It runs while armed, so Unready can call it after
// offboard has been stopped.
func (e *Engine) ReturnHome(ctx context.Context, errorBoundFeet float64) error {
	if st := e.session.State(); !st.IsArmed() || st == supervisor.StateFaulted {
		e.logger.Error("Refusing return home", "state", st)
		return fmt.Errorf("return home: %w (state %s)", ErrNotOffboard, st)
	}
	home, ok := e.session.Home()
	if !ok {
		return fmt.Errorf("return home: %w", ErrNoHome)
	}
	if errorBoundFeet <= 0 {
		errorBoundFeet = DefaultHomeBound
	}

	if err := e.link.ReturnToLaunch(ctx); err != nil {
		return fmt.Errorf("return home: %w", err)
	}
	e.markCommand()
	e.logger.Warn("Boat is returning home", "home", home)

	for {
		pos, err := e.link.Position(ctx)
		if err != nil {
			return fmt.Errorf("return home: %w", err)
		}
		dist := geo.DistanceFeet(home, pos)
		if dist <= errorBoundFeet {
			e.done("return home", fmt.Sprintf("%.1f ft from home", dist))
			return nil
		}
		logging.Trace(e.logger, "Returning home", "distance_ft", dist)
		if err := e.sleep(ctx); err != nil {
			return fmt.Errorf("return home: %w", err)
		}
	}
}

func (e *Engine) done(op, detail string) {
	logging.OK(e.logger, "Maneuver complete", "op", op, "detail", detail)
	e.session.Record(store.EventGuidance, op+": "+detail)
}

func (e *Engine) sleep(ctx context.Context) error {
	t := time.NewTimer(e.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package failsafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"boatpilot/pkg/logging"
	"boatpilot/pkg/steering"
	"boatpilot/pkg/store"
)

var (
	// ErrTargetLost ends a mission when no target was seen within the watchdog timeout.
	ErrTargetLost = errors.New("target lost")
	// ErrMissionComplete is returned by a Stepper to end the mission normally.
	ErrMissionComplete = errors.New("mission complete")
)

// Stepper performs one bounded unit of mission work.
type Stepper interface {
	Step(ctx context.Context) (steering.Outcome, error)
}

// StepFunc adapts a function to Stepper.
type StepFunc func(ctx context.Context) (steering.Outcome, error)

func (f StepFunc) Step(ctx context.Context) (steering.Outcome, error) {
	return f(ctx)
}

// Supervisor is the teardown side of the readiness session.
type Supervisor interface {
	Unready(ctx context.Context, returnToLaunch bool) error
	MarkFaulted(err error)
	Record(kind, detail string)
}

// Config holds mission failsafe settings.
type Config struct {
	// OperationDeadline bounds each step.
	OperationDeadline time.Duration
	// LostTargetTimeout ends the mission when no target is found for this long. Zero disables.
	LostTargetTimeout time.Duration
	// ReturnToLaunch is passed to Unready when the mission ends without losing the target.
	ReturnToLaunch bool
	// IdleInterval is the pause after a step with no detection signal.
	IdleInterval time.Duration
}

// Mission runs steps until the context ends, the stepper completes, the target is lost or
// a fault occurs. The boat is always unreadied on the way out.
type Mission struct {
	sup      Supervisor
	stepper  Stepper
	cfg      Config
	watchdog *Watchdog
	logger   *slog.Logger

	steps    atomic.Int64
	timeouts atomic.Int64
}

// NewMission creates a mission loop.
func NewMission(sup Supervisor, stepper Stepper, cfg Config) *Mission {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 100 * time.Millisecond
	}
	return &Mission{
		sup:      sup,
		stepper:  stepper,
		cfg:      cfg,
		watchdog: NewWatchdog(cfg.LostTargetTimeout),
		logger:   slog.Default().With("component", "failsafe"),
	}
}

// SetLogger replaces the mission logger.
func (m *Mission) SetLogger(l *slog.Logger) {
	m.logger = l
}

// Watchdog exposes the lost-target watchdog.
func (m *Mission) Watchdog() *Watchdog {
	return m.watchdog
}

// Steps returns how many steps have run.
func (m *Mission) Steps() int64 {
	return m.steps.Load()
}

// Timeouts returns how many steps hit the operation deadline.
func (m *Mission) Timeouts() int64 {
	return m.timeouts.Load()
}

// Run drives the loop and then unreadies the boat. It returns nil when the mission completes
// or ctx is cancelled, ErrTargetLost when the watchdog fires, or the fault that ended it.
// Teardown errors are joined onto the result.
func (m *Mission) Run(ctx context.Context) error {
	m.watchdog.Reset()
	m.logger.Info("Mission started", "deadline", m.cfg.OperationDeadline, "lost_target", m.cfg.LostTargetTimeout)

	loopErr := m.loop(ctx)

	rtl := m.cfg.ReturnToLaunch
	switch {
	case loopErr == nil:
		logging.OK(m.logger, "Mission ended", "steps", m.Steps(), "timeouts", m.Timeouts())
	case errors.Is(loopErr, ErrTargetLost):
		m.logger.Warn("Target lost, returning to launch", "since", m.watchdog.Since())
		m.sup.Record(store.EventFailsafe, "target lost")
		rtl = true
	default:
		m.sup.MarkFaulted(loopErr)
	}

	if err := m.sup.Unready(ctx, rtl); err != nil {
		m.logger.Error("Teardown after mission failed", "error", err)
		return errors.Join(loopErr, err)
	}
	return loopErr
}

func (m *Mission) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			m.logger.Warn("Mission cancelled")
			return nil
		}
		if m.watchdog.Expired() {
			return fmt.Errorf("%w: nothing seen for %s", ErrTargetLost, m.watchdog.Since().Round(time.Millisecond))
		}

		out, err := m.step(ctx)
		m.steps.Add(1)
		switch {
		case err == nil:
		case errors.Is(err, ErrMissionComplete):
			return nil
		case errors.Is(err, ErrDeadline):
			m.timeouts.Add(1)
			m.logger.Warn("Operation timed out, continuing", "error", err)
			m.sup.Record(store.EventFailsafe, err.Error())
			continue
		case ctx.Err() != nil:
			m.logger.Warn("Mission cancelled")
			return nil
		default:
			m.logger.Error("Mission step failed", "error", err)
			return err
		}

		if !out.Seen {
			if err := m.idle(ctx); err != nil {
				return nil
			}
		}
	}
}

// step runs one bounded step and converts a panic into an error.
func (m *Mission) step(ctx context.Context) (out steering.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in mission step: %v", r)
		}
	}()

	err = WithDeadline(ctx, m.cfg.OperationDeadline, func(dctx context.Context) error {
		var serr error
		out, serr = m.stepper.Step(dctx)
		if out.Found() {
			m.watchdog.Reset()
		}
		return serr
	})
	return out, err
}

func (m *Mission) idle(ctx context.Context) error {
	t := time.NewTimer(m.cfg.IdleInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

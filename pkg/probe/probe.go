// Package probe runs the preflight checks that gate arming.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/vehicle"
)

const defaultTimeout = 5 * time.Second

// CheckFunc performs one check. It returns nil when the check passes.
type CheckFunc func(ctx context.Context) error

// Probe represents a single preflight check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool          // A failing critical probe blocks the mission.
	Timeout  time.Duration // Zero uses the default.
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes probes in order, each under its own timeout.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		start := time.Now()
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(pctx)
		cancel()

		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// AnalyzeResults logs a summary and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Preflight Checks Summary")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
			if !r.Probe.Critical {
				status = "WARN"
			}
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		switch {
		case r.Error == nil:
			slog.Info(msg)
		case r.Probe.Critical:
			slog.Error(msg, "error", r.Error)
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn(msg, "error", r.Error)
		}
	}

	if len(criticalErrors) > 0 {
		return errors.Join(criticalErrors...)
	}
	return nil
}

// HomeInFence fails when the recorded home lies outside the operating area.
func HomeInFence(fence *geo.Fence, home geo.Point) Probe {
	return Probe{
		Name:     "Home inside geofence",
		Critical: true,
		Check: func(context.Context) error {
			return fence.Check(home)
		},
	}
}

// PositionLock checks controller health once. It is advisory; Arm waits for the lock.
func PositionLock(link vehicle.Link) Probe {
	return Probe{
		Name: "Position lock",
		Check: func(ctx context.Context) error {
			h, err := link.Health(ctx)
			if err != nil {
				return err
			}
			if !h.Locked() {
				return fmt.Errorf("no lock yet (global=%t home=%t)", h.GlobalPositionOK, h.HomePositionOK)
			}
			return nil
		},
	}
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Recorder checks the mission database answers. Recording is best effort, so it is advisory.
func Recorder(p Pinger) Probe {
	return Probe{
		Name:    "Mission recorder",
		Timeout: 2 * time.Second,
		Check:   p.PingContext,
	}
}

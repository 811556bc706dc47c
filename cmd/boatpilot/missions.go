package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"boatpilot/pkg/config"
	"boatpilot/pkg/db"
	"boatpilot/pkg/failsafe"
	"boatpilot/pkg/geo"
	"boatpilot/pkg/guidance"
	"boatpilot/pkg/probe"
	"boatpilot/pkg/steering"
	"boatpilot/pkg/supervisor"
	"boatpilot/pkg/vehicle"
	"boatpilot/pkg/vehicle/mockboat"
)

const (
	missionSteer  = "steer"
	missionSquare = "square"
	missionDry    = "dry"
)

// Session outcomes written to the recorder.
const (
	outcomeComplete   = "complete"
	outcomeCancelled  = "cancelled"
	outcomeTargetLost = "target_lost"
	outcomePreflight  = "preflight_failed"
	outcomeNotReady   = "not_ready"
	outcomeFault      = "fault"
)

var errUnknownMission = errors.New("unknown mission")

// dryRunDeltas is the detection sequence replayed by the dry mission.
var dryRunDeltas = []int{0, 40, -40, 5, -5}

type missionDeps struct {
	cfg     *config.Config
	session *supervisor.Session
	engine  *guidance.Engine
	link    vehicle.Link
	fence   *geo.Fence
	db      *db.DB
}

func checkMission(name string) error {
	switch name {
	case missionSteer, missionSquare, missionDry:
		return nil
	}
	return fmt.Errorf("%w %q (want steer, square or dry)", errUnknownMission, name)
}

// runMission connects, runs preflight, readies the boat and hands it to the failsafe loop.
// A cancelled context before the mission starts is a clean exit.
func runMission(ctx context.Context, d *missionDeps, name string) error {
	logger := slog.Default().With("component", "mission", "mission", name)
	sess := d.session

	if err := sess.Connect(ctx, d.cfg.Vehicle.Address); err != nil {
		if ctx.Err() != nil {
			logger.Info("Cancelled while connecting")
			return nil
		}
		return err
	}

	outcome := outcomeComplete
	defer func() {
		sess.EndSession(context.WithoutCancel(ctx), outcome)
	}()

	home, _ := sess.Home()
	results := probe.Run(ctx, []probe.Probe{
		probe.HomeInFence(d.fence, home),
		probe.PositionLock(d.link),
		probe.Recorder(d.db),
	})
	if err := probe.AnalyzeResults(results); err != nil {
		outcome = outcomePreflight
		return fmt.Errorf("preflight failed: %w", err)
	}

	stepper, err := newStepper(name, d, logger)
	if err != nil {
		outcome = outcomeFault
		return err
	}

	ok, err := sess.Ready(ctx, d.cfg.Vehicle.ArmTimeout.D())
	if !ok {
		if ctx.Err() != nil {
			outcome = outcomeCancelled
			logger.Info("Cancelled while readying")
			return nil
		}
		outcome = outcomeNotReady
		if err == nil {
			err = errors.New("position lock not acquired")
		}
		return fmt.Errorf("boat not ready: %w", err)
	}

	fsCfg := failsafe.Config{
		OperationDeadline: d.cfg.Failsafe.OperationDeadline.D(),
		LostTargetTimeout: d.cfg.Failsafe.LostTargetTimeout.D(),
		ReturnToLaunch:    d.cfg.Failsafe.ReturnToLaunch,
	}
	if name == missionSquare {
		// No camera, nothing to lose
		fsCfg.LostTargetTimeout = 0
	}
	m := failsafe.NewMission(sess, stepper, fsCfg)
	err = m.Run(ctx)

	outcome, err = missionResult(err, sess.State(), ctx.Err() != nil)
	if outcome == outcomeTargetLost && err == nil {
		logger.Warn("Mission ended on lost target", "steps", m.Steps())
	}
	return err
}

// missionResult maps the end of a mission run to a session outcome and the error run reports.
// A lost target whose teardown brought the boat back to Connected is a normal end; the steer
// mission finishes this way once the gate is behind the boat. A killed or faulted boat keeps
// the error.
func missionResult(err error, st supervisor.State, cancelled bool) (string, error) {
	switch {
	case errors.Is(err, failsafe.ErrTargetLost):
		if st == supervisor.StateConnected {
			return outcomeTargetLost, nil
		}
		return outcomeTargetLost, err
	case err != nil:
		return outcomeFault, err
	case cancelled:
		return outcomeCancelled, nil
	}
	return outcomeComplete, nil
}

func newStepper(name string, d *missionDeps, logger *slog.Logger) (failsafe.Stepper, error) {
	steer := steering.Config{
		DeadbandPixels: d.cfg.Steering.DeadbandPixels,
		CorrectionDeg:  d.cfg.Steering.CorrectionDeg,
		StepFeet:       d.cfg.Steering.StepDistance.Feet(),
		ErrorBoundFeet: d.cfg.Guidance.ForwardBound.Feet(),
	}

	switch name {
	case missionSteer:
		boat, ok := d.link.(*mockboat.Boat)
		if !ok {
			return nil, fmt.Errorf("steer mission needs a camera; provider %q has none", d.cfg.Vehicle.Provider)
		}
		m := d.cfg.Mock
		cam := mockboat.NewGateCamera(boat, float64(m.GateDistance), float64(m.GateWidth), m.CameraFOV, d.cfg.Steering.FrameWidth)
		red, green := cam.Buoys()
		logger.Info("Gate placed", "red", red, "green", green)

		a := steering.NewAdapter(steering.NewGateDetector(cam, d.cfg.Steering.FrameWidth), d.engine, steer)
		a.SetRecorder(d.session)
		return a, nil

	case missionDry:
		replay := steering.Deltas(dryRunDeltas...)
		a := steering.NewAdapter(replay, d.engine, steer)
		a.SetRecorder(d.session)
		return failsafe.StepFunc(func(ctx context.Context) (steering.Outcome, error) {
			if replay.Remaining() == 0 {
				return steering.Outcome{}, failsafe.ErrMissionComplete
			}
			return a.Step(ctx)
		}), nil

	case missionSquare:
		return squareStepper(d), nil
	}
	return nil, checkMission(name)
}

// squareStepper drives one leg and one right-angle turn per step, four times.
func squareStepper(d *missionDeps) failsafe.Stepper {
	leg := d.cfg.Steering.StepDistance.Feet() * 5
	legs := 0
	return failsafe.StepFunc(func(ctx context.Context) (steering.Outcome, error) {
		if legs == 4 {
			return steering.Outcome{}, failsafe.ErrMissionComplete
		}
		if err := d.engine.Forward(ctx, leg, 0, d.cfg.Guidance.ForwardBound.Feet()); err != nil {
			return steering.Outcome{}, err
		}
		if err := d.engine.Turn(ctx, 90, d.cfg.Guidance.TurnErrorBound); err != nil {
			return steering.Outcome{}, err
		}
		legs++
		return steering.Outcome{Seen: true}, nil
	})
}

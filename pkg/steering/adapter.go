package steering

import (
	"context"
	"fmt"
	"log/slog"

	"boatpilot/pkg/store"
)

// Defaults for the bang-bang policy.
const (
	DefaultDeadbandPixels = 10
	DefaultCorrectionDeg  = 15.0
	DefaultStepFeet       = 10.0
)

// Mover is the guidance operation the adapter drives.
type Mover interface {
	Forward(ctx context.Context, distanceFeet, deltaDeg, errorBoundFeet float64) error
}

// Recorder receives detection events.
type Recorder interface {
	Record(kind, detail string)
}

// Config holds the steering policy.
type Config struct {
	DeadbandPixels int
	CorrectionDeg  float64
	StepFeet       float64
	ErrorBoundFeet float64
}

// Outcome describes what one Step did.
type Outcome struct {
	Detection DetectionResult
	// Seen is true when the detector produced any signal, including a lost result.
	Seen     bool
	DeltaDeg float64
}

// Found reports whether a buoy was actually in view.
func (o Outcome) Found() bool {
	return o.Seen && !o.Detection.Lost()
}

// Adapter applies a fixed-step correction by the sign of the detector delta, never by its
// size.
type Adapter struct {
	det    Detector
	mover  Mover
	cfg    Config
	rec    Recorder
	logger *slog.Logger
}

// NewAdapter creates an adapter. Zero config fields take the defaults.
func NewAdapter(det Detector, mover Mover, cfg Config) *Adapter {
	if cfg.DeadbandPixels <= 0 {
		cfg.DeadbandPixels = DefaultDeadbandPixels
	}
	if cfg.CorrectionDeg <= 0 {
		cfg.CorrectionDeg = DefaultCorrectionDeg
	}
	if cfg.StepFeet <= 0 {
		cfg.StepFeet = DefaultStepFeet
	}
	return &Adapter{
		det:    det,
		mover:  mover,
		cfg:    cfg,
		logger: slog.Default().With("component", "steering"),
	}
}

// SetRecorder attaches a detection event sink.
func (a *Adapter) SetRecorder(r Recorder) {
	a.rec = r
}

// Correction maps a pixel delta to a heading change.
func (a *Adapter) Correction(deltaPixels int) float64 {
	switch {
	case deltaPixels > a.cfg.DeadbandPixels:
		return a.cfg.CorrectionDeg
	case deltaPixels < -a.cfg.DeadbandPixels:
		return -a.cfg.CorrectionDeg
	default:
		return 0
	}
}

// Step asks the detector once and moves one step. With no signal it does not move.
func (a *Adapter) Step(ctx context.Context) (Outcome, error) {
	res, ok, err := a.det.Detect(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("detect: %w", err)
	}
	if !ok {
		a.logger.Debug("No detection signal")
		return Outcome{}, nil
	}

	out := Outcome{Detection: res, Seen: true, DeltaDeg: a.Correction(res.DeltaPixels)}
	if res.Lost() {
		a.logger.Warn("Both buoys lost, holding course")
	}
	if a.rec != nil {
		a.rec.Record(store.EventDetection, fmt.Sprintf("delta=%dpx correction=%.0f lost=%t",
			res.DeltaPixels, out.DeltaDeg, res.Lost()))
	}

	a.logger.Debug("Steering step", "delta_px", res.DeltaPixels, "correction", out.DeltaDeg)
	if err := a.mover.Forward(ctx, a.cfg.StepFeet, out.DeltaDeg, a.cfg.ErrorBoundFeet); err != nil {
		return out, err
	}
	return out, nil
}

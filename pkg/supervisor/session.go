package supervisor

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
	"boatpilot/pkg/vehicle"
)

var (
	// ErrInvalidState is returned when an operation is called from the wrong state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrConnectTimeout is returned when the link never reports a handshake.
	ErrConnectTimeout = errors.New("timed out waiting for vehicle connection")
)

// HomeReturner drives the boat back to the recorded home coordinate.
type HomeReturner interface {
	ReturnHome(ctx context.Context, errorBoundFeet float64) error
}

// Config holds the supervisor's timing.
type Config struct {
	PollInterval time.Duration
	// ConnectTimeout bounds Connect. Zero waits forever.
	ConnectTimeout time.Duration
	// HomeTimeout bounds the return-to-launch leg of Unready. Zero waits forever.
	HomeTimeout        time.Duration
	HomeErrorBoundFeet float64
}

// DefaultConfig returns the timing used in the field.
func DefaultConfig() Config {
	return Config{
		PollInterval:       100 * time.Millisecond,
		ConnectTimeout:     60 * time.Second,
		HomeTimeout:        5 * time.Minute,
		HomeErrorBoundFeet: 5,
	}
}

// Session is the single owner of the vehicle's readiness state.
// Only Session mutates State; guidance and steering read it.
type Session struct {
	mu        sync.RWMutex
	state     State
	home      geo.Point
	homeSet   bool
	address   string
	sessionID string
	fault     error

	link     vehicle.Link
	cfg      Config
	logger   *slog.Logger
	recorder store.Recorder
	homer    HomeReturner
}

// New creates a disconnected session over link.
func New(link vehicle.Link, cfg Config) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.HomeErrorBoundFeet <= 0 {
		cfg.HomeErrorBoundFeet = DefaultConfig().HomeErrorBoundFeet
	}
	return &Session{
		state:  StateDisconnected,
		link:   link,
		cfg:    cfg,
		logger: slog.Default().With("component", "supervisor"),
	}
}

// SetLogger replaces the session logger.
func (s *Session) SetLogger(l *slog.Logger) {
	s.logger = l
}

// SetRecorder attaches a mission recorder. Recording failures are logged, never fatal.
func (s *Session) SetRecorder(r store.Recorder) {
	s.recorder = r
}

// SetHomeReturner wires the convergence loop used by Unready's return-to-launch leg.
func (s *Session) SetHomeReturner(h HomeReturner) {
	s.homer = h
}

// State returns the current readiness state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Home returns the coordinate recorded at connect and whether it is set.
func (s *Session) Home() (geo.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.home, s.homeSet
}

// Link returns the vehicle link the session supervises.
func (s *Session) Link() vehicle.Link {
	return s.link
}

// MarkFaulted records a mission fault reported by the failsafe layer. State is left to
// Unready, which owns the teardown.
func (s *Session) MarkFaulted(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()
	s.logger.Error("Mission fault", "error", err)
	s.Record(store.EventFailsafe, err.Error())
}

// Fault returns the last fault passed to MarkFaulted.
func (s *Session) Fault() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fault
}

// ID returns the recorder session id, empty when nothing is recorded.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	s.logger.Info("State transition", "from", prev, "to", next)
	s.Record(store.EventState, fmt.Sprintf("%s -> %s", prev, next))
}

// Record writes a mission event to the attached recorder, if any.
func (s *Session) Record(kind, detail string) {
	id := s.ID()
	if s.recorder == nil || id == "" {
		return
	}
	if err := s.recorder.RecordEvent(context.Background(), id, kind, detail); err != nil {
		s.logger.Warn("Failed to record event", "kind", kind, "error", err)
	}
}

// Connect starts the link, waits for the handshake and records home.
func (s *Session) Connect(ctx context.Context, address string) error {
	if st := s.State(); st != StateDisconnected {
		return fmt.Errorf("connect from %s: %w", st, ErrInvalidState)
	}

	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	if err := s.link.Connect(ctx, address); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	s.logger.Warn("Waiting for boat to connect...", "address", address)

	if err := s.poll(ctx, func() (bool, error) {
		return s.link.ConnectionState(ctx)
	}); err != nil {
		return s.connectErr(err)
	}

	// Position can lag the handshake by a few samples
	var home geo.Point
	if err := s.poll(ctx, func() (bool, error) {
		p, err := s.link.Position(ctx)
		if err != nil {
			logging.Trace(s.logger, "Position not yet available", "error", err)
			return false, nil
		}
		home = p
		return true, nil
	}); err != nil {
		return s.connectErr(err)
	}

	s.mu.Lock()
	s.home = home
	s.homeSet = true
	s.address = address
	s.mu.Unlock()

	if s.recorder != nil && s.ID() == "" {
		id, err := s.recorder.StartSession(ctx, address, home)
		if err != nil {
			s.logger.Warn("Failed to start recorder session", "error", err)
		} else {
			s.mu.Lock()
			s.sessionID = id
			s.mu.Unlock()
		}
	}

	s.setState(StateConnected)
	logging.OK(s.logger, "Boat connected", "home", home)
	return nil
}

func (s *Session) connectErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrConnectTimeout, s.cfg.ConnectTimeout)
	}
	return err
}

// Arm waits up to timeout for a position lock and arms the motors.
// A missing lock returns (false, nil); a refused arm returns the link error.
func (s *Session) Arm(ctx context.Context, timeout time.Duration) (bool, error) {
	if st := s.State(); st != StateConnected {
		s.logger.Error("Cannot arm", "state", st)
		return false, fmt.Errorf("arm from %s: %w", st, ErrInvalidState)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Warn("Waiting for global position lock...", "timeout", timeout)
	err := s.poll(lockCtx, func() (bool, error) {
		h, err := s.link.Health(lockCtx)
		if err != nil {
			return false, err
		}
		return h.Locked(), nil
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.Error("Position lock not acquired", "timeout", timeout)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("health check failed: %w", err)
	}
	logging.OK(s.logger, "Global position state good")

	s.logger.Warn("Arming the boat...")
	if err := s.link.Arm(ctx); err != nil {
		s.logger.Error("Arm refused", "error", err)
		return false, fmt.Errorf("failed to arm: %w", err)
	}

	s.setState(StateArmed)
	logging.OK(s.logger, "Boat armed")
	return true, nil
}

// EnableOffboard sends a neutral setpoint and switches the controller to offboard.
func (s *Session) EnableOffboard(ctx context.Context) (bool, error) {
	if st := s.State(); st != StateArmed {
		s.logger.Error("Cannot enable offboard", "state", st)
		return false, fmt.Errorf("enable offboard from %s: %w", st, ErrInvalidState)
	}

	// Controllers reject offboard start without a prior setpoint
	if err := s.link.SetVelocityBody(ctx, vehicle.BodyVelocity{}); err != nil {
		s.logger.Error("Initial setpoint rejected", "error", err)
		return false, fmt.Errorf("failed to send initial setpoint: %w", err)
	}

	s.logger.Warn("Setting offboard control...")
	if err := s.link.StartOffboard(ctx); err != nil {
		s.logger.Error("Offboard start rejected", "error", err)
		return false, fmt.Errorf("failed to start offboard: %w", err)
	}

	s.setState(StateOffboardActive)
	logging.OK(s.logger, "Offboard mode is a go")
	return true, nil
}

// Ready arms and enables offboard. On any failure it unreadies the boat.
// It is the only supported way to reach StateOffboardActive.
func (s *Session) Ready(ctx context.Context, armTimeout time.Duration) (bool, error) {
	ok, err := s.Arm(ctx, armTimeout)
	if ok {
		ok, err = s.EnableOffboard(ctx)
	}
	if ok {
		return true, nil
	}

	if uerr := s.Unready(ctx, true); uerr != nil {
		err = errors.Join(err, uerr)
	}
	return false, err
}

// Unready stops offboard, optionally returns to launch, then lands and disarms.
// It is a no-op unless the boat may be armed. Any failure during teardown escalates to a
// kill so the boat is never left armed without a controller.
func (s *Session) Unready(ctx context.Context, returnToLaunch bool) error {
	st := s.State()
	if !st.IsArmed() {
		s.logger.Debug("Unready: nothing to do", "state", st)
		return nil
	}

	// Teardown must run to completion even when the mission context is already cancelled.
	ctx = context.WithoutCancel(ctx)

	var err error
	if st == StateFaulted {
		err = errors.New("previous teardown left session faulted")
	} else {
		err = s.teardown(ctx, st, returnToLaunch)
	}
	if err == nil {
		s.setState(StateConnected)
		logging.OK(s.logger, "Boat disarmed")
		return nil
	}

	s.logger.Error("Teardown failed, killing boat", "error", err)
	s.setState(StateFaulted)
	if kerr := s.link.Kill(ctx); kerr != nil {
		s.logger.Error("KILL FAILED", "error", kerr)
		return errors.Join(err, fmt.Errorf("kill failed: %w", kerr))
	}
	s.logger.Warn("Boat killed")
	s.setState(StateDisconnected)
	return fmt.Errorf("teardown failed, boat killed: %w", err)
}

func (s *Session) teardown(ctx context.Context, st State, returnToLaunch bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during teardown: %v", r)
		}
	}()

	active, aerr := s.link.IsOffboardActive(ctx)
	if aerr != nil {
		s.logger.Warn("Could not read offboard state", "error", aerr)
	}
	if active || st == StateOffboardActive {
		s.logger.Warn("Stopping offboard...")
		if serr := s.link.StopOffboard(ctx); serr != nil {
			s.logger.Error("Failed to stop offboard", "error", serr)
		}
	}
	s.setState(StateArmed)

	if returnToLaunch && s.homer != nil {
		s.logger.Warn("Returning to launch...")
		rctx := ctx
		if s.cfg.HomeTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, s.cfg.HomeTimeout)
			defer cancel()
		}
		if rerr := s.homer.ReturnHome(rctx, s.cfg.HomeErrorBoundFeet); rerr != nil {
			return fmt.Errorf("return to launch: %w", rerr)
		}
	}

	s.logger.Warn("Disarming boat...")
	if lerr := s.link.Land(ctx); lerr != nil {
		return fmt.Errorf("land: %w", lerr)
	}
	armed, rerr := s.link.Armed(ctx)
	if rerr != nil {
		return fmt.Errorf("read armed state: %w", rerr)
	}
	if armed {
		if derr := s.link.Disarm(ctx); derr != nil {
			return fmt.Errorf("disarm: %w", derr)
		}
	}
	return nil
}

// EndSession closes the recorder session with outcome.
func (s *Session) EndSession(ctx context.Context, outcome string) {
	id := s.ID()
	if s.recorder == nil || id == "" {
		return
	}
	if err := s.recorder.EndSession(ctx, id, outcome); err != nil {
		s.logger.Warn("Failed to end recorder session", "error", err)
	}
}

// Sample reads a telemetry snapshot tagged with the session state and records it.
func (s *Session) Sample(ctx context.Context) (store.Sample, error) {
	tel, err := vehicle.Snapshot(ctx, s.link)
	if err != nil {
		return store.Sample{}, err
	}
	smp := store.Sample{
		Position:   tel.Position,
		Heading:    tel.Heading,
		State:      s.State().String(),
		RecordedAt: time.Now(),
	}
	if id := s.ID(); s.recorder != nil && id != "" {
		if err := s.recorder.RecordSample(ctx, id, smp); err != nil {
			s.logger.Warn("Failed to record sample", "error", err)
		}
	}
	return smp, nil
}

// poll calls check every PollInterval until it reports done, fails, or ctx ends.
func (s *Session) poll(ctx context.Context, check func() (bool, error)) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Package mockboat simulates a flight-controller-driven boat in-process.
package mockboat

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/vehicle"
)

// Operation names accepted by InjectFault and Calls.
const (
	OpConnect        = "connect"
	OpPosition       = "position"
	OpHeading        = "heading"
	OpHealth         = "health"
	OpArm            = "arm"
	OpDisarm         = "disarm"
	OpLand           = "land"
	OpKill           = "kill"
	OpReturnToLaunch = "return_to_launch"
	OpStartOffboard  = "start_offboard"
	OpStopOffboard   = "stop_offboard"
	OpSetPosition    = "set_position"
	OpSetVelocity    = "set_velocity"
)

const (
	defaultTick        = 100 * time.Millisecond
	defaultCruiseSpeed = 2.0  // m/s
	defaultTurnRate    = 30.0 // deg/s
)

// Config holds the starting conditions and performance of the simulated boat.
type Config struct {
	Start        geo.Point
	StartHeading *float64 // random when nil
	CruiseSpeed  float64  // m/s
	TurnRate     float64  // deg/s
	Tick         time.Duration

	// ConnectDelay is how long the handshake takes after Connect.
	ConnectDelay time.Duration
	// LockDelay is how long after connecting health reports a GPS lock.
	LockDelay time.Duration
	// NeverConnect and NoGPSLock model links that never become usable.
	NeverConnect bool
	NoGPSLock    bool
}

type fault struct {
	err       error
	remaining int // <0 means every call; never 0
}

// Boat implements vehicle.Link.
type Boat struct {
	mu  sync.Mutex
	cfg Config

	connectStarted time.Time
	connecting     bool

	pos     geo.Point
	heading float64
	home    geo.Point

	armed       bool
	mode        vehicle.FlightMode
	position    *vehicle.GlobalSetpoint
	velocity    *vehicle.BodyVelocity
	hasSetpoint bool
	stuck       bool

	faults map[string]*fault
	calls  map[string]int

	trackBuf *geo.TrackBuffer
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a boat at cfg.Start and starts its physics loop.
func New(cfg Config) *Boat {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if cfg.CruiseSpeed <= 0 {
		cfg.CruiseSpeed = defaultCruiseSpeed
	}
	if cfg.TurnRate <= 0 {
		cfg.TurnRate = defaultTurnRate
	}

	b := &Boat{
		cfg:      cfg,
		pos:      cfg.Start,
		home:     cfg.Start,
		heading:  startHeading(cfg.StartHeading),
		mode:     vehicle.ModeHold,
		faults:   make(map[string]*fault),
		calls:    make(map[string]int),
		trackBuf: geo.NewTrackBuffer(5, 0.5),
		stopCh:   make(chan struct{}),
	}

	b.wg.Add(1)
	go b.physicsLoop()
	return b
}

// InjectFault makes the next count calls of op fail with err. A negative count fails every
// call; zero removes any fault on op.
func (b *Boat) InjectFault(op string, err error, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count == 0 {
		delete(b.faults, op)
		return
	}
	b.faults[op] = &fault{err: err, remaining: count}
}

// ClearFaults removes all injected faults.
func (b *Boat) ClearFaults() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = make(map[string]*fault)
}

// Calls returns how many times op was invoked.
func (b *Boat) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// SetStuck freezes the hull in place; commands are still accepted.
func (b *Boat) SetStuck(stuck bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stuck = stuck
}

// Teleport moves the boat, resetting its track.
func (b *Boat) Teleport(p geo.Point, heading float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = p
	b.heading = geo.NormalizeHeading(heading)
	b.trackBuf.Reset()
}

// Mode returns the current flight mode without going through the link contract.
func (b *Boat) Mode() vehicle.FlightMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// CourseOverGround returns the course derived from recent fixes.
func (b *Boat) CourseOverGround() float64 {
	b.mu.Lock()
	hdg := b.heading
	b.mu.Unlock()
	return b.trackBuf.Course(hdg)
}

// Close stops the physics loop and releases resources.
func (b *Boat) Close() error {
	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	b.wg.Wait()
	return nil
}

// enter records the call and returns an injected fault, if any. Caller holds mu.
func (b *Boat) enter(op string) error {
	b.calls[op]++
	f, ok := b.faults[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(b.faults, op)
		}
	}
	return fmt.Errorf("%s: %w", op, f.err)
}

func (b *Boat) connectedLocked() bool {
	if !b.connecting || b.cfg.NeverConnect {
		return false
	}
	return time.Since(b.connectStarted) >= b.cfg.ConnectDelay
}

func (b *Boat) Connect(ctx context.Context, address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpConnect); err != nil {
		return err
	}
	if !b.connecting {
		b.connecting = true
		b.connectStarted = time.Now()
	}
	return nil
}

func (b *Boat) ConnectionState(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectedLocked(), nil
}

func (b *Boat) Position(ctx context.Context) (geo.Point, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpPosition); err != nil {
		return geo.Point{}, err
	}
	if !b.connectedLocked() {
		return geo.Point{}, vehicle.ErrNotConnected
	}
	return b.pos, nil
}

func (b *Boat) Heading(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpHeading); err != nil {
		return 0, err
	}
	if !b.connectedLocked() {
		return 0, vehicle.ErrNotConnected
	}
	return b.heading, nil
}

func (b *Boat) Health(ctx context.Context) (vehicle.Health, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpHealth); err != nil {
		return vehicle.Health{}, err
	}
	if !b.connectedLocked() {
		return vehicle.Health{}, vehicle.ErrNotConnected
	}
	return b.healthLocked(), nil
}

func (b *Boat) healthLocked() vehicle.Health {
	locked := !b.cfg.NoGPSLock &&
		time.Since(b.connectStarted) >= b.cfg.ConnectDelay+b.cfg.LockDelay
	return vehicle.Health{GlobalPositionOK: locked, HomePositionOK: locked}
}

func (b *Boat) Armed(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armed, nil
}

func (b *Boat) FlightMode(ctx context.Context) (vehicle.FlightMode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode, nil
}

func (b *Boat) Arm(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpArm); err != nil {
		return err
	}
	if !b.connectedLocked() {
		return vehicle.ErrNotConnected
	}
	if !b.healthLocked().Locked() {
		return fmt.Errorf("arm without position lock: %w", vehicle.ErrCommandDenied)
	}
	b.armed = true
	b.home = b.pos
	return nil
}

func (b *Boat) Disarm(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpDisarm); err != nil {
		return err
	}
	b.disarmLocked(vehicle.ModeHold)
	return nil
}

func (b *Boat) Land(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpLand); err != nil {
		return err
	}
	// A boat has nowhere to descend to; land stops and disarms.
	b.disarmLocked(vehicle.ModeLand)
	return nil
}

func (b *Boat) Kill(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpKill); err != nil {
		return err
	}
	b.disarmLocked(vehicle.ModeManual)
	return nil
}

func (b *Boat) disarmLocked(mode vehicle.FlightMode) {
	b.armed = false
	b.mode = mode
	b.position = nil
	b.velocity = nil
	b.hasSetpoint = false
}

func (b *Boat) ReturnToLaunch(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpReturnToLaunch); err != nil {
		return err
	}
	if !b.armed {
		return fmt.Errorf("return to launch while disarmed: %w", vehicle.ErrCommandDenied)
	}
	b.mode = vehicle.ModeReturnToLaunch
	return nil
}

func (b *Boat) StartOffboard(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpStartOffboard); err != nil {
		return err
	}
	if !b.armed {
		return fmt.Errorf("not armed: %w", vehicle.ErrOffboardRejected)
	}
	if !b.hasSetpoint {
		return fmt.Errorf("no setpoint before start: %w", vehicle.ErrOffboardRejected)
	}
	b.mode = vehicle.ModeOffboard
	return nil
}

func (b *Boat) StopOffboard(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpStopOffboard); err != nil {
		return err
	}
	if b.mode == vehicle.ModeOffboard {
		b.mode = vehicle.ModeHold
	}
	return nil
}

func (b *Boat) IsOffboardActive(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode == vehicle.ModeOffboard, nil
}

func (b *Boat) SetPositionGlobal(ctx context.Context, sp vehicle.GlobalSetpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSetPosition); err != nil {
		return err
	}
	if !b.connectedLocked() {
		return vehicle.ErrNotConnected
	}
	b.position = &sp
	b.velocity = nil
	b.hasSetpoint = true
	return nil
}

func (b *Boat) SetVelocityBody(ctx context.Context, v vehicle.BodyVelocity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter(OpSetVelocity); err != nil {
		return err
	}
	if !b.connectedLocked() {
		return vehicle.ErrNotConnected
	}
	b.velocity = &v
	b.position = nil
	b.hasSetpoint = true
	return nil
}

func (b *Boat) physicsLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.update(b.cfg.Tick.Seconds())
		}
	}
}

func (b *Boat) update(dt float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.armed || b.stuck {
		return
	}

	switch b.mode {
	case vehicle.ModeOffboard:
		switch {
		case b.velocity != nil:
			b.applyVelocity(*b.velocity, dt)
		case b.position != nil:
			b.slewHeading(b.position.Yaw, dt)
			b.moveToward(geo.Point{Lat: b.position.Lat, Lon: b.position.Lon}, dt)
		}
	case vehicle.ModeReturnToLaunch:
		if geo.Distance(b.pos, b.home) > 0 {
			b.slewHeading(geo.Bearing(b.pos, b.home), dt)
		}
		b.moveToward(b.home, dt)
	}

	b.trackBuf.Push(b.pos, b.heading)
}

func (b *Boat) applyVelocity(v vehicle.BodyVelocity, dt float64) {
	b.heading = geo.NormalizeHeading(b.heading + v.YawRate*dt)
	if v.Forward != 0 {
		b.pos = geo.DestinationPoint(b.pos, v.Forward*dt, b.heading)
	}
	if v.Right != 0 {
		b.pos = geo.DestinationPoint(b.pos, v.Right*dt, b.heading+90)
	}
}

func (b *Boat) slewHeading(target, dt float64) {
	diff := geo.NormalizeAngle(target - b.heading)
	step := b.cfg.TurnRate * dt
	if math.Abs(diff) <= step {
		b.heading = geo.NormalizeHeading(target)
		return
	}
	b.heading = geo.NormalizeHeading(b.heading + math.Copysign(step, diff))
}

func (b *Boat) moveToward(dest geo.Point, dt float64) {
	remaining := geo.Distance(b.pos, dest)
	step := b.cfg.CruiseSpeed * dt
	if remaining <= step {
		b.pos = dest
		return
	}
	b.pos = geo.DestinationPoint(b.pos, step, geo.Bearing(b.pos, dest))
}

func startHeading(h *float64) float64 {
	if h == nil {
		return rand.Float64() * 360.0
	}
	return geo.NormalizeHeading(*h)
}

var _ vehicle.Link = (*Boat)(nil)

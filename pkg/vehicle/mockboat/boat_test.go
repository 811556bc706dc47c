package mockboat

import (
	"context"
	"errors"
	"testing"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/vehicle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, check func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Timeout waiting for: %s", msg)
}

func newTestBoat(t *testing.T, mutate func(*Config)) *Boat {
	t.Helper()
	hdg := 0.0
	cfg := Config{
		Start:        geo.Point{Lat: 27.0, Lon: -82.0},
		StartHeading: &hdg,
		CruiseSpeed:  20,
		TurnRate:     360,
		Tick:         5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b := New(cfg)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func armed(t *testing.T, b *Boat) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx, "udp://:14540"))
	require.NoError(t, b.Arm(ctx))
}

func TestConnectDelay(t *testing.T) {
	b := newTestBoat(t, func(c *Config) { c.ConnectDelay = 30 * time.Millisecond })
	ctx := context.Background()

	ok, err := b.ConnectionState(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "not connected before Connect")

	_, err = b.Position(ctx)
	assert.ErrorIs(t, err, vehicle.ErrNotConnected)

	require.NoError(t, b.Connect(ctx, "udp://:14540"))
	waitFor(t, func() bool {
		ok, _ := b.ConnectionState(ctx)
		return ok
	}, time.Second, "handshake")
}

func TestArmRequiresLock(t *testing.T) {
	b := newTestBoat(t, func(c *Config) { c.NoGPSLock = true })
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx, ""))

	h, err := b.Health(ctx)
	require.NoError(t, err)
	assert.False(t, h.Locked())
	assert.ErrorIs(t, b.Arm(ctx), vehicle.ErrCommandDenied)
}

func TestOffboardNeedsSetpoint(t *testing.T) {
	b := newTestBoat(t, nil)
	ctx := context.Background()
	armed(t, b)

	assert.ErrorIs(t, b.StartOffboard(ctx), vehicle.ErrOffboardRejected)

	require.NoError(t, b.SetVelocityBody(ctx, vehicle.BodyVelocity{}))
	require.NoError(t, b.StartOffboard(ctx))
	active, _ := b.IsOffboardActive(ctx)
	assert.True(t, active)

	require.NoError(t, b.StopOffboard(ctx))
	assert.Equal(t, vehicle.ModeHold, b.Mode())
}

func TestPositionSetpointConverges(t *testing.T) {
	b := newTestBoat(t, nil)
	ctx := context.Background()
	armed(t, b)

	start, _ := b.Position(ctx)
	dest := geo.Project(start, 30, 90)
	require.NoError(t, b.SetPositionGlobal(ctx, vehicle.GlobalSetpoint{Lat: dest.Lat, Lon: dest.Lon, Yaw: 90}))
	require.NoError(t, b.StartOffboard(ctx))

	waitFor(t, func() bool {
		p, _ := b.Position(ctx)
		h, _ := b.Heading(ctx)
		return geo.DistanceFeet(p, dest) < 0.1 && geo.CircularDiff(h, 90) < 0.1
	}, 2*time.Second, "boat reaches setpoint")

	assert.InDelta(t, 90, b.CourseOverGround(), 5)
}

func TestReturnToLaunch(t *testing.T) {
	b := newTestBoat(t, nil)
	ctx := context.Background()
	armed(t, b)

	home, _ := b.Position(ctx)
	b.Teleport(geo.Project(home, 50, 180), 0)
	require.NoError(t, b.ReturnToLaunch(ctx))
	assert.Equal(t, vehicle.ModeReturnToLaunch, b.Mode())

	waitFor(t, func() bool {
		p, _ := b.Position(ctx)
		return geo.DistanceFeet(p, home) < 0.1
	}, 2*time.Second, "boat returns home")
}

func TestStuckBoatDoesNotMove(t *testing.T) {
	b := newTestBoat(t, nil)
	ctx := context.Background()
	armed(t, b)
	b.SetStuck(true)

	start, _ := b.Position(ctx)
	require.NoError(t, b.SetVelocityBody(ctx, vehicle.BodyVelocity{Forward: 5}))
	require.NoError(t, b.StartOffboard(ctx))
	time.Sleep(30 * time.Millisecond)

	p, _ := b.Position(ctx)
	assert.Equal(t, start, p)
}

func TestInjectFault(t *testing.T) {
	b := newTestBoat(t, nil)
	ctx := context.Background()
	armed(t, b)

	boom := errors.New("link dropped")
	b.InjectFault(OpLand, boom, 1)

	assert.ErrorIs(t, b.Land(ctx), boom)
	assert.NoError(t, b.Land(ctx), "fault is consumed after one call")
	assert.Equal(t, 2, b.Calls(OpLand))

	b.InjectFault(OpDisarm, boom, 0)
	assert.NoError(t, b.Disarm(ctx), "zero count injects nothing")

	b.InjectFault(OpStopOffboard, boom, -1)
	b.InjectFault(OpStopOffboard, boom, 0)
	assert.NoError(t, b.StopOffboard(ctx), "zero count clears an earlier fault")

	b.InjectFault(OpKill, boom, -1)
	assert.Error(t, b.Kill(ctx))
	assert.Error(t, b.Kill(ctx))
	b.ClearFaults()
	assert.NoError(t, b.Kill(ctx))

	isArmed, _ := b.Armed(ctx)
	assert.False(t, isArmed)
}

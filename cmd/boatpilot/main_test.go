package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"boatpilot/pkg/db"
	"boatpilot/pkg/failsafe"
	"boatpilot/pkg/store"
	"boatpilot/pkg/supervisor"
)

const fastBoat = `
vehicle:
    provider: mock
    arm_timeout: 2s
    connect_timeout: 2s
guidance:
    poll_interval: 10ms
server:
    address: localhost:0  # 0 lets OS choose free port
    telemetry_every: 50ms
failsafe:
    operation_deadline: 5s
    lost_target_timeout: 2s
mock:
    cruise_speed_mps: 50
    turn_rate_dps: 720
    lock_delay: %LOCK%
`

// writeConfig writes a fast simulated-boat config into a temp dir and returns its path and
// the database path.
func writeConfig(t *testing.T, lockDelay string) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "missions.db")
	body := fastBoat + "log:\n    server:\n        path: " + filepath.Join(dir, "test.log") +
		"\n        level: debug\ndb:\n    path: " + dbPath + "\n"
	body = strings.ReplaceAll(body, "%LOCK%", lockDelay)

	cfgPath = filepath.Join(dir, "boatpilot.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return cfgPath, dbPath
}

func lastOutcome(t *testing.T, dbPath string) string {
	t.Helper()
	d, err := db.Init(dbPath)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	defer d.Close()

	var id string
	if err := d.QueryRow(`SELECT id FROM mission_sessions ORDER BY started_at DESC LIMIT 1`).Scan(&id); err != nil {
		t.Fatalf("no session recorded: %v", err)
	}
	sess, err := store.NewSQLiteStore(d).GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return sess.Outcome
}

func TestRun(t *testing.T) {
	tests := []struct {
		mission string
		outcome string
	}{
		{missionDry, outcomeComplete},
		{missionSquare, outcomeComplete},
		// Drives through the simulated gate, loses both buoys behind it and returns home.
		{missionSteer, outcomeTargetLost},
	}
	for _, tt := range tests {
		t.Run(tt.mission, func(t *testing.T) {
			cfgPath, dbPath := writeConfig(t, "0s")

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()

			if err := run(ctx, cfgPath, tt.mission); err != nil {
				t.Fatalf("run() failed: %v", err)
			}
			if ctx.Err() != nil {
				t.Fatal("mission did not finish before the test deadline")
			}
			if got := lastOutcome(t, dbPath); got != tt.outcome {
				t.Errorf("outcome = %q, want %q", got, tt.outcome)
			}
		})
	}
}

func TestRun_CancelledWhileWaitingForLock(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "1m")

	// Create a context that cancels quickly to verify startup sequence
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfgPath, missionSteer); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
	if got := lastOutcome(t, dbPath); got != outcomeCancelled {
		t.Errorf("outcome = %q, want %q", got, outcomeCancelled)
	}
}

func TestRun_UnknownMission(t *testing.T) {
	cfgPath, _ := writeConfig(t, "0s")
	err := run(context.Background(), cfgPath, "figure-eight")
	if !errors.Is(err, errUnknownMission) {
		t.Fatalf("expected errUnknownMission, got %v", err)
	}
}

func TestInitializeLink_UnknownProvider(t *testing.T) {
	cfgPath, _ := writeConfig(t, "0s")
	data, _ := os.ReadFile(cfgPath)
	if err := os.WriteFile(cfgPath, []byte(strings.ReplaceAll(string(data), "provider: mock", "provider: mavsdk")), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(context.Background(), cfgPath, missionDry); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestMissionResult(t *testing.T) {
	lost := fmt.Errorf("%w: nothing seen for 2s", failsafe.ErrTargetLost)
	killed := errors.Join(lost, errors.New("teardown failed, boat killed: land: denied"))
	boom := errors.New("link dropped")

	tests := []struct {
		name        string
		err         error
		state       supervisor.State
		cancelled   bool
		wantOutcome string
		wantErr     error
	}{
		{"complete", nil, supervisor.StateConnected, false, outcomeComplete, nil},
		{"cancelled", nil, supervisor.StateConnected, true, outcomeCancelled, nil},
		{"target lost, home and disarmed", lost, supervisor.StateConnected, false, outcomeTargetLost, nil},
		{"target lost, boat killed", killed, supervisor.StateDisconnected, false, outcomeTargetLost, failsafe.ErrTargetLost},
		{"target lost, kill failed", killed, supervisor.StateFaulted, false, outcomeTargetLost, failsafe.ErrTargetLost},
		{"fault", boom, supervisor.StateDisconnected, false, outcomeFault, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := missionResult(tt.err, tt.state, tt.cancelled)
			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %q, want %q", outcome, tt.wantOutcome)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

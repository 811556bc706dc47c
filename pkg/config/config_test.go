package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "boatpilot.yaml")

	tests := []struct {
		name          string
		setup         func(t *testing.T)
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T)
		expectedError bool
	}{
		{
			name:  "NewFile_Defaults",
			setup: func(t *testing.T) {},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Vehicle.Provider != "mock" {
					t.Errorf("expected default provider 'mock', got '%s'", cfg.Vehicle.Provider)
				}
				if cfg.Guidance.PollInterval.D() != 100*time.Millisecond {
					t.Errorf("expected poll interval 100ms, got %v", cfg.Guidance.PollInterval.D())
				}
				if cfg.Steering.DeadbandPixels != 10 {
					t.Errorf("expected deadband 10, got %d", cfg.Steering.DeadbandPixels)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "provider: mock") {
					t.Error("config file missing default values")
				}
				if !strings.HasPrefix(string(content), "# boatpilot configuration") {
					t.Error("config file missing header")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func(t *testing.T) {
				data := "vehicle:\n  arm_timeout: 5s\nfailsafe:\n  operation_deadline: 45\nsteering:\n  step_distance: 20ft\n"
				if err := os.WriteFile(configPath, []byte(data), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Vehicle.ArmTimeout.D() != 5*time.Second {
					t.Errorf("expected arm timeout 5s, got %v", cfg.Vehicle.ArmTimeout.D())
				}
				if cfg.Failsafe.OperationDeadline.D() != 45*time.Second {
					t.Errorf("expected deadline 45s, got %v", cfg.Failsafe.OperationDeadline.D())
				}
				if got := cfg.Steering.StepDistance.Feet(); got < 19.999 || got > 20.001 {
					t.Errorf("expected 20ft step, got %v", got)
				}
				// Untouched sections keep defaults
				if cfg.Steering.CorrectionDeg != 15 {
					t.Errorf("expected default correction 15, got %v", cfg.Steering.CorrectionDeg)
				}
			},
		},
		{
			name: "EnvOverridesAddress",
			setup: func(t *testing.T) {
				t.Setenv(EnvAddress, "serial:///dev/ttyACM0:57600")
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Vehicle.Address != "serial:///dev/ttyACM0:57600" {
					t.Errorf("expected env address, got %q", cfg.Vehicle.Address)
				}
			},
		},
		{
			name: "InvalidPollInterval",
			setup: func(t *testing.T) {
				if err := os.WriteFile(configPath, []byte("guidance:\n  poll_interval: 0s\n"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "MalformedYAML",
			setup: func(t *testing.T) {
				if err := os.WriteFile(configPath, []byte("vehicle: [unclosed"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(configPath)
			tt.setup(t)

			cfg, err := Load(configPath)
			if (err != nil) != tt.expectedError {
				t.Fatalf("Load() error = %v, expectedError %v", err, tt.expectedError)
			}
			if tt.expectedError {
				return
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t)
			}
		})
	}
}

func TestGenerateDefault_KeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "boatpilot.yaml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("vehicle:\n  address: custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("second GenerateDefault failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "custom") {
		t.Error("GenerateDefault overwrote an existing file")
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAddress overrides Vehicle.Address when set.
const EnvAddress = "BOATPILOT_ADDRESS"

// Config holds the application configuration.
type Config struct {
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	Guidance GuidanceConfig `yaml:"guidance"`
	Failsafe FailsafeConfig `yaml:"failsafe"`
	Steering SteeringConfig `yaml:"steering"`
	Geofence GeofenceConfig `yaml:"geofence"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	Mock     MockConfig     `yaml:"mock"`
}

// VehicleConfig holds settings for the flight-controller link.
type VehicleConfig struct {
	Provider       string   `yaml:"provider"` // "mock"
	Address        string   `yaml:"address"`
	ArmTimeout     Duration `yaml:"arm_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"` // 0 waits forever
}

// GuidanceConfig holds convergence loop settings.
type GuidanceConfig struct {
	PollInterval     Duration `yaml:"poll_interval"`
	HeadingTolerance float64  `yaml:"heading_tolerance_deg"`
	TurnErrorBound   float64  `yaml:"turn_error_bound_deg"`
	ForwardBound     Distance `yaml:"forward_error_bound"`
	GotoBound        Distance `yaml:"goto_error_bound"`
	HomeBound        Distance `yaml:"home_error_bound"`
}

// FailsafeConfig holds deadline and watchdog settings.
type FailsafeConfig struct {
	OperationDeadline Duration `yaml:"operation_deadline"`
	LostTargetTimeout Duration `yaml:"lost_target_timeout"`
	ReturnToLaunch    bool     `yaml:"return_to_launch"`
}

// SteeringConfig holds the bang-bang steering policy.
type SteeringConfig struct {
	DeadbandPixels int      `yaml:"deadband_px"`
	CorrectionDeg  float64  `yaml:"correction_deg"`
	StepDistance   Distance `yaml:"step_distance"`
	FrameWidth     int      `yaml:"frame_width"`
}

// GeofenceConfig points at the GeoJSON operating area. Empty disables the fence.
type GeofenceConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds ground-station HTTP settings. Empty address disables the server.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	TelemetryEvery Duration `yaml:"telemetry_every"`
}

// MockConfig holds settings for the simulated boat.
type MockConfig struct {
	StartLat     float64  `yaml:"start_lat"`
	StartLon     float64  `yaml:"start_lon"`
	StartHeading float64  `yaml:"start_heading"`
	CruiseSpeed  float64  `yaml:"cruise_speed_mps"`
	TurnRate     float64  `yaml:"turn_rate_dps"`
	LockDelay    Duration `yaml:"lock_delay"`
	// Simulated buoy gate ahead of the start position, seen by the mock camera.
	GateDistance Distance `yaml:"gate_distance"`
	GateWidth    Distance `yaml:"gate_width"`
	CameraFOV    float64  `yaml:"camera_fov_deg"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Vehicle: VehicleConfig{
			Provider:       "mock",
			Address:        "udp://:14540",
			ArmTimeout:     Duration(30 * time.Second),
			ConnectTimeout: Duration(60 * time.Second),
		},
		Guidance: GuidanceConfig{
			PollInterval:     Duration(100 * time.Millisecond),
			HeadingTolerance: 5,
			TurnErrorBound:   1,
			ForwardBound:     Distance(1 * 0.3048),
			GotoBound:        Distance(5 * 0.3048),
			HomeBound:        Distance(5 * 0.3048),
		},
		Failsafe: FailsafeConfig{
			OperationDeadline: Duration(30 * time.Second),
			LostTargetTimeout: Duration(20 * time.Second),
			ReturnToLaunch:    true,
		},
		Steering: SteeringConfig{
			DeadbandPixels: 10,
			CorrectionDeg:  15,
			StepDistance:   Distance(10 * 0.3048),
			FrameWidth:     640,
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:       "./logs/boatpilot.log",
				Level:      "INFO",
				MaxSizeMB:  32,
				MaxBackups: 3,
			},
		},
		DB: DBConfig{
			Path: "./data/missions.db",
		},
		Server: ServerConfig{
			Address:        "localhost:8090",
			TelemetryEvery: Duration(1 * time.Second),
		},
		Mock: MockConfig{
			StartLat:     27.3753,
			StartLon:     -82.4510,
			StartHeading: 0,
			CruiseSpeed:  2.0,
			TurnRate:     30,
			LockDelay:    Duration(2 * time.Second),
			GateDistance: Distance(100 * 0.3048),
			GateWidth:    Distance(20 * 0.3048),
			CameraFOV:    60,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Env wins over the file but is never written back
	if addr := os.Getenv(EnvAddress); addr != "" {
		cfg.Vehicle.Address = addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the guidance loops cannot run with.
func (c *Config) Validate() error {
	if c.Guidance.PollInterval <= 0 {
		return fmt.Errorf("guidance.poll_interval must be positive")
	}
	if c.Guidance.HeadingTolerance <= 0 || c.Guidance.TurnErrorBound <= 0 {
		return fmt.Errorf("guidance heading bounds must be positive")
	}
	if c.Guidance.ForwardBound <= 0 || c.Guidance.GotoBound <= 0 || c.Guidance.HomeBound <= 0 {
		return fmt.Errorf("guidance distance bounds must be positive")
	}
	if c.Failsafe.OperationDeadline <= 0 {
		return fmt.Errorf("failsafe.operation_deadline must be positive")
	}
	if c.Steering.DeadbandPixels < 0 {
		return fmt.Errorf("steering.deadband_px must not be negative")
	}
	if c.Mock.CameraFOV < 0 || c.Mock.CameraFOV >= 180 {
		return fmt.Errorf("mock.camera_fov_deg must be in [0, 180)")
	}
	if c.Mock.StartLat < -90 || c.Mock.StartLat > 90 || c.Mock.StartLon < -180 || c.Mock.StartLon > 180 {
		return fmt.Errorf("mock start position (%v, %v) out of range", c.Mock.StartLat, c.Mock.StartLon)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# boatpilot configuration
# ---------------------
# Supported Units:
#   Duration: ms, s, m, h (bare numbers are seconds)
#   Distance: ft, m, km, nm (bare numbers are meters)
# vehicle.provider options: mock

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}

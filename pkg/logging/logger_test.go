package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"boatpilot/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "logs", "boatpilot.log")

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	slog.Debug("debug line", "k", "v")
	OK(nil, "boat armed")
	cleanup()

	data, err := os.ReadFile(serverLog)
	if err != nil {
		t.Fatalf("Server log file not created: %v", err)
	}
	if !strings.Contains(string(data), "debug line") {
		t.Error("debug record missing from file log")
	}
	if !strings.Contains(string(data), "level=OK") {
		t.Errorf("OK level not rendered as OK: %s", data)
	}
}

func TestSetupHandler_ConsoleCappedAtInfo(t *testing.T) {
	var console bytes.Buffer
	h, _, err := setupHandler(&config.LogSettings{Level: "DEBUG"}, &console)
	if err != nil {
		t.Fatalf("setupHandler failed: %v", err)
	}
	logger := slog.New(h)

	logger.Debug("hidden from console")
	logger.Warn("shown on console")

	out := console.String()
	if strings.Contains(out, "hidden from console") {
		t.Error("console received a DEBUG record")
	}
	if !strings.Contains(out, "shown on console") {
		t.Error("console missing WARN record")
	}
	if GlobalLogCapture.GetLastLine() == "" {
		t.Error("capture writer did not receive the WARN record")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"TRACE": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"ok":    LevelOK,
		"Warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogCaptureWriter_Limit(t *testing.T) {
	w := NewLogCaptureWriter(2)
	for _, l := range []string{"one\n", "two\n", "three\n"} {
		_, _ = w.Write([]byte(l))
	}
	lines := w.Lines()
	if len(lines) != 2 || lines[0] != "two" || lines[1] != "three" {
		t.Errorf("Lines() = %v, want [two three]", lines)
	}
	if w.GetLastLine() != "three" {
		t.Errorf("GetLastLine() = %q", w.GetLastLine())
	}
}

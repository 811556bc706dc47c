package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"boatpilot/pkg/config"
)

// Init initializes the logging system based on configuration and installs the result as
// the slog default. It returns a cleanup function to close log files.
func Init(cfg *config.LogConfig) (func(), error) {
	handler, closer, err := setupHandler(&cfg.Server, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to setup server logger: %w", err)
	}
	slog.SetDefault(slog.New(handler))

	return func() {
		if closer != nil {
			closer.Close()
		}
	}, nil
}

// ParseLevel maps a config string to a slog level. Unknown strings are INFO.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "OK":
		return LevelOK
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupHandler(s *config.LogSettings, console io.Writer) (slog.Handler, io.Closer, error) {
	level := ParseLevel(s.Level)
	EnableTrace = strings.EqualFold(s.Level, "TRACE")

	var handlers []slog.Handler
	var closer io.Closer

	if s.Path != "" {
		if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
			return nil, nil, err
		}
		w := &lumberjack.Logger{
			Filename:   s.Path,
			MaxSize:    s.MaxSizeMB, // MB
			MaxBackups: s.MaxBackups,
		}
		// Each run starts a fresh file; the previous run becomes a backup.
		if err := w.Rotate(); err != nil {
			return nil, nil, err
		}
		closer = w
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:       level,
			AddSource:   level == slog.LevelDebug,
			ReplaceAttr: replaceLevel,
		}))
	}

	// Console Handler - only INFO and up
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{
			Level:       mathMaxLevel(level, slog.LevelInfo),
			ReplaceAttr: replaceLevel,
		}))
	}

	// Capture Handler - for the ground-station log endpoint
	handlers = append(handlers, slog.NewTextHandler(GlobalLogCapture, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: replaceLevel,
	}))

	return &multiHandler{handlers: handlers}, closer, nil
}

func mathMaxLevel(a, b slog.Level) slog.Level {
	if a > b {
		return a
	}
	return b
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler
// nolint:gocritic // r must be passed by value to implement slog.Handler
func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}

// Package api serves the ground-station HTTP interface: live telemetry, mission history and
// the log tail.
package api

import (
	"log/slog"
	"net/http"
	"time"
)

// NewServer creates and configures the HTTP server.
// events may be nil when no recorder is configured.
func NewServer(addr string, tel *TelemetryHandler, events *EventsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Telemetry Endpoints
	mux.HandleFunc("GET /api/telemetry", tel.handleTelemetry)
	mux.HandleFunc("GET /ws/telemetry", tel.handleStream)

	// 3. Logs Endpoints
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/recent", handleRecentLogs)

	// 4. Mission History Endpoints
	if events != nil {
		mux.HandleFunc("GET /api/events", events.HandleEvents)
		mux.HandleFunc("GET /api/session", events.HandleSession)
		mux.HandleFunc("GET /api/track", events.HandleTrack)
	}

	// 5. Shutdown Endpoint
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Warn("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush before cancelling the mission
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	// No WriteTimeout: the telemetry stream is long-lived and sets its own write deadlines.
	return &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/store"
)

// TelemetryResponse is the API response structure.
type TelemetryResponse struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Heading   float64    `json:"heading"`
	State     string     `json:"state"`
	Home      *geo.Point `json:"home,omitempty"`
	Fault     string     `json:"fault,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TelemetryHandler serves the latest boat snapshot over HTTP and a websocket stream.
type TelemetryHandler struct {
	mu       sync.RWMutex
	last     TelemetryResponse
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewTelemetryHandler creates a handler that pushes to stream clients every interval.
func NewTelemetryHandler(interval time.Duration) *TelemetryHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &TelemetryHandler{
		last:     TelemetryResponse{State: "disconnected"},
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Ground station UI may be served from another origin on the LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Update stores a telemetry sample.
func (h *TelemetryHandler) Update(s store.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last.Latitude = s.Position.Lat
	h.last.Longitude = s.Position.Lon
	h.last.Heading = s.Heading
	h.last.State = s.State
	h.last.UpdatedAt = s.RecordedAt
}

// UpdateStatus stores the session's home and last fault.
func (h *TelemetryHandler) UpdateStatus(home geo.Point, homeSet bool, fault error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last.Home = nil
	if homeSet {
		hp := home
		h.last.Home = &hp
	}
	h.last.Fault = ""
	if fault != nil {
		h.last.Fault = fault.Error()
	}
}

// Snapshot returns a copy of the latest state.
func (h *TelemetryHandler) Snapshot() TelemetryResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

func (h *TelemetryHandler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	resp := h.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode telemetry response", "error", err)
	}
}

// handleStream upgrades to a websocket and pushes a snapshot every interval until the client
// goes away.
func (h *TelemetryHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Telemetry stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping are handled
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if err := conn.WriteJSON(h.Snapshot()); err != nil {
			slog.Debug("Telemetry stream closed", "error", err)
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"boatpilot/pkg/store"
)

// SessionIDProvider returns the id of the mission currently being recorded.
type SessionIDProvider interface {
	ID() string
}

// EventsHandler serves recorded mission history.
type EventsHandler struct {
	session SessionIDProvider
	reader  store.Reader
}

// NewEventsHandler creates a new EventsHandler. Returns nil if dependencies are missing.
func NewEventsHandler(session SessionIDProvider, reader store.Reader) *EventsHandler {
	if session == nil || reader == nil {
		return nil
	}
	return &EventsHandler{session: session, reader: reader}
}

// sessionID picks ?session= or falls back to the active mission.
func (h *EventsHandler) sessionID(r *http.Request) string {
	if id := r.URL.Query().Get("session"); id != "" {
		return id
	}
	return h.session.ID()
}

// HandleEvents returns the newest mission events as JSON.
// GET /api/events?limit=N&session=ID
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events := []store.Event{}
	if id := h.sessionID(r); id != "" {
		got, err := h.reader.RecentEvents(r.Context(), id, limit)
		if err != nil {
			slog.Error("Failed to read mission events", "error", err)
			http.Error(w, "failed to read events", http.StatusInternalServerError)
			return
		}
		events = append(events, got...)
	}

	writeJSON(w, events)
}

// HandleSession returns the mission session record.
// GET /api/session?session=ID
func (h *EventsHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(r)
	if id == "" {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	sess, err := h.reader.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to read mission session", "id", id, "error", err)
		http.Error(w, "failed to read session", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, sess)
}

// HandleTrack returns the recorded telemetry samples of a mission.
// GET /api/track?session=ID
func (h *EventsHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	samples := []store.Sample{}
	if id := h.sessionID(r); id != "" {
		got, err := h.reader.Samples(r.Context(), id)
		if err != nil {
			slog.Error("Failed to read mission track", "error", err)
			http.Error(w, "failed to read track", http.StatusInternalServerError)
			return
		}
		samples = append(samples, got...)
	}
	writeJSON(w, samples)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

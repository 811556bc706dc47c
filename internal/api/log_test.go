package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"boatpilot/pkg/logging"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "info with params",
			input: `time=2026-01-18T06:50:46.074+01:00 level=INFO msg="State transition" component=supervisor from=armed to=offboard_active`,
			want:  "06:50:46 State transition (from=armed, to=offboard_active)",
		},
		{
			name:  "warn keeps level and drops long values",
			input: `time=2026-01-18T06:50:47.000+01:00 level=WARN msg="Operation timed out, continuing" error="operation deadline exceeded after 30s: forward: context deadline exceeded"`,
			want:  "06:50:47 WARN Operation timed out, continuing",
		},
		{
			name:  "custom ok level",
			input: `time=2026-01-18T06:50:48.000+01:00 level=OK msg="Boat armed"`,
			want:  "06:50:48 OK Boat armed",
		},
		{
			name:  "unstructured passes through",
			input: "plain text",
			want:  "plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLogLine(tt.input); got != tt.want {
				t.Errorf("formatLogLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleLatestLog(t *testing.T) {
	_, _ = logging.GlobalLogCapture.Write([]byte(`time=2026-01-18T06:50:46.074+01:00 level=INFO msg="Boat connected"` + "\n"))

	w := httptest.NewRecorder()
	handleLatestLog(w, httptest.NewRequest("GET", "/api/log/latest", http.NoBody))

	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if !strings.HasSuffix(body["log"], "Boat connected") {
		t.Errorf("log = %q, want suffix %q", body["log"], "Boat connected")
	}

	w = httptest.NewRecorder()
	handleRecentLogs(w, httptest.NewRequest("GET", "/api/log/recent", http.NoBody))
	var recent map[string][]string
	if err := json.NewDecoder(w.Result().Body).Decode(&recent); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(recent["logs"]) == 0 {
		t.Error("expected at least one recent line")
	}
}

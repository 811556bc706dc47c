package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"boatpilot/pkg/logging"
)

// Regex to capture key=value or key="value with spaces"
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// maxParamLen drops attributes too long for the ground-station ticker.
const maxParamLen = 24

// handleLatestLog returns the last captured log line.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	line := logging.GlobalLogCapture.GetLastLine()
	writeJSON(w, map[string]string{"log": formatLogLine(line)})
}

// handleRecentLogs returns every captured line, oldest first.
func handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	lines := logging.GlobalLogCapture.Lines()
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, formatLogLine(l))
	}
	writeJSON(w, map[string][]string{"logs": out})
}

// formatLogLine renders a slog text line as "HH:MM:SS LEVEL msg (k=v, ...)".
// Attributes are sorted; component and long values are dropped.
func formatLogLine(raw string) string {
	matches := logRegex.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return raw
	}

	var msg, timeStr, level string
	var params []string

	for _, m := range matches {
		key := m[1]
		val := m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				timeStr = t.Format("15:04:05")
			}
		case "level":
			level = val
		case "msg":
			msg = val
		case "component":
		default:
			if len(val) <= maxParamLen {
				params = append(params, fmt.Sprintf("%s=%s", key, val))
			}
		}
	}

	if msg == "" {
		return raw
	}
	sort.Strings(params)

	parts := make([]string, 0, 3)
	if timeStr != "" {
		parts = append(parts, timeStr)
	}
	if level != "" && level != "INFO" {
		parts = append(parts, level)
	}
	parts = append(parts, msg)
	output := strings.Join(parts, " ")

	if len(params) > 0 {
		return fmt.Sprintf("%s (%s)", output, strings.Join(params, ", "))
	}
	return output
}

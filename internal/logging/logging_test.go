package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"presentation-service/internal/config"
)

func TestNewWithWriter_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Str("job_id", "j1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if ev["message"] != "kept" || ev["job_id"] != "j1" || ev["time"] == nil {
		t.Fatalf("unexpected event %v", ev)
	}
}

func TestNewWithWriter_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LogConfig{Level: "loud"}, &buf)

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected info level, got %q", buf.String())
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("short"); got != "***" {
		t.Fatalf("expected ***, got %q", got)
	}
	if got := Redact("sk-gamma-1234567890"); got != "sk-g...90" {
		t.Fatalf("unexpected redaction %q", got)
	}
}

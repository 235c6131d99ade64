package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug")

	log.Info("task admitted", String("task", "t1"), Int("attempt", 2), Float64("temp_c", 71.5))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["message"] != "task admitted" {
		t.Errorf("message = %v, want task admitted", rec["message"])
	}
	if rec["task"] != "t1" {
		t.Errorf("task = %v, want t1", rec["task"])
	}
	if rec["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", rec["attempt"])
	}
}

func TestWithFieldsCarry(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "info").With(String("session", "s1"))

	log.Warn("budget checkpoint threshold reached")

	if !strings.Contains(buf.String(), `"session":"s1"`) {
		t.Errorf("derived field missing from output: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("sub-warn output leaked: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn output missing: %s", out)
	}
}

func TestErrField(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "info")

	log.Error("task failed", Err(errors.New("boom")))
	if !strings.Contains(buf.String(), `"err":"boom"`) {
		t.Errorf("error field missing: %s", buf.String())
	}

	buf.Reset()
	log.Error("no cause", Err(nil))
	if strings.Contains(buf.String(), `"err"`) {
		t.Errorf("nil error should add no field: %s", buf.String())
	}
}

func TestZeroValueIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Error("zero Logger should report IsZero")
	}
	// Must not panic.
	log.Info("quiet")
	log.With(String("k", "v")).Error("still quiet")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" INFO ", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

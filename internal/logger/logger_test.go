package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNamedAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Writer: &buf})

	Named("pipeline").Info().Str("doc", "a.md").Msg("processed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "pipeline" {
		t.Errorf("expected component pipeline, got %v", entry["component"])
	}
	if entry["doc"] != "a.md" {
		t.Errorf("expected doc field, got %v", entry["doc"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Format: "json", Writer: &buf})

	Get().Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn, got %q", buf.String())
	}
	Get().Warn().Msg("shown")
	if buf.Len() == 0 {
		t.Error("expected warn line to be written")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" info ":  zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

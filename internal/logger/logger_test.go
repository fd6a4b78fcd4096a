package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// helper to read all JSON objects from buffer
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	s := bufio.NewScanner(buf)
	var out []map[string]any
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line: %s err=%v", line, err)
		}
		out = append(out, m)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	return out
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	if err := SetLevel("info"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}

	Debug("debug message should be filtered")
	Info("info message", "k", 1)

	records := decodeLines(t, &buf)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["msg"].(string) != "info message" {
		t.Fatalf("unexpected message: %+v", records[0])
	}

	// Enable debug and ensure it appears
	buf.Reset()
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	Debug("visible debug", "a", 2)
	records = decodeLines(t, &buf)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["msg"].(string) != "visible debug" {
		t.Fatalf("unexpected message: %+v", records[0])
	}
}

func TestSetLevelValidation(t *testing.T) {
	if err := SetLevel("nonsense"); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		if err := SetLevel(lvl); err != nil {
			t.Fatalf("SetLevel(%q): %v", lvl, err)
		}
	}
}

func TestDetectLevelFromEnv(t *testing.T) {
	t.Setenv(envLogLevel, "debug")
	if got := detectLevel(); got != slog.LevelDebug {
		t.Fatalf("expected debug, got %v", got)
	}
	t.Setenv(envLogLevel, "bogus")
	if got := detectLevel(); got != slog.LevelInfo {
		t.Fatalf("expected info fallback, got %v", got)
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	UseWriter(&buf)
	if err := SetLevel("info"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}

	l := WithClient(Logger(), "c1", "10.0.0.1:4444")
	l = WithPath(l, "/cam1")
	l = WithSession(l, "abcd1234")
	l.Info("attached fields")

	records := decodeLines(t, &buf)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r["client_id"] != "c1" || r["path"] != "/cam1" || r["session_id"] != "abcd1234" {
		t.Fatalf("missing context fields: %+v", r)
	}
}

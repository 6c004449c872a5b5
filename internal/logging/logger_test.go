package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsRecord(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("episode dispatched",
		String(FieldComponent, "dispatcher"),
		Int64(FieldEpisodeID, 42),
	)

	out := buf.String()
	if !strings.Contains(out, "[dispatcher]") {
		t.Fatalf("expected component in output, got %q", out)
	}
	if !strings.Contains(out, "episode dispatched") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "episode_id=42") {
		t.Fatalf("expected attr in output, got %q", out)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed, got %q", buf.String())
	}
	logger.Warn("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected warning emitted, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewComponentLoggerNilBase(t *testing.T) {
	logger := NewComponentLogger(nil, "test")
	if logger == nil {
		t.Fatal("expected logger")
	}
	logger.Info("should not panic")
}

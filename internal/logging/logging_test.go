package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedLogger(level slog.Level) (ServiceLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return NewSlogServiceLogger(slog.New(handler)), &buf
}

func TestNewSlogServiceLoggerNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil slog logger")
		}
	}()
	NewSlogServiceLogger(nil)
}

func TestFieldsEmittedInKeyOrder(t *testing.T) {
	logger, buf := newCapturedLogger(slog.LevelInfo)

	logger.Info("ordering", LogFields{"zeta": 1, "alpha": 2, "mid": 3})

	out := buf.String()
	alpha := strings.Index(out, "alpha=2")
	mid := strings.Index(out, "mid=3")
	zeta := strings.Index(out, "zeta=1")
	if alpha < 0 || mid < 0 || zeta < 0 {
		t.Fatalf("missing fields in output %q", out)
	}
	if !(alpha < mid && mid < zeta) {
		t.Fatalf("fields out of order in output %q", out)
	}
}

func TestErrorAppendsErrorField(t *testing.T) {
	logger, buf := newCapturedLogger(slog.LevelInfo)

	logger.Error("write failed", errors.New("disk full"), LogFields{"path": "/tmp/x"})

	out := buf.String()
	if !strings.Contains(out, "disk full") {
		t.Fatalf("expected error message in output %q", out)
	}
	if !strings.Contains(out, "path=/tmp/x") {
		t.Fatalf("expected field in output %q", out)
	}
}

func TestErrorWithoutCause(t *testing.T) {
	logger, buf := newCapturedLogger(slog.LevelInfo)

	logger.Error("write failed", nil, nil)

	if strings.Contains(buf.String(), "error=") {
		t.Fatalf("unexpected error field in output %q", buf.String())
	}
}

func TestTraceLevelGating(t *testing.T) {
	t.Run("suppressed at default level", func(t *testing.T) {
		logger, buf := newCapturedLogger(slog.LevelInfo)
		logger.Trace("frame hexdump", nil)
		if buf.Len() != 0 {
			t.Fatalf("expected no output, got %q", buf.String())
		}
	})

	t.Run("emitted when enabled", func(t *testing.T) {
		logger, buf := newCapturedLogger(LevelTrace)
		logger.Trace("frame hexdump", LogFields{"bytes": 12})
		if !strings.Contains(buf.String(), "frame hexdump") {
			t.Fatalf("expected trace output, got %q", buf.String())
		}
	})
}

func TestWithBindsFields(t *testing.T) {
	logger, buf := newCapturedLogger(slog.LevelInfo)

	derived := logger.With(LogFields{"connection": "01ABC"})
	derived.Info("opened", nil)
	if !strings.Contains(buf.String(), "connection=01ABC") {
		t.Fatalf("expected bound field in output %q", buf.String())
	}

	buf.Reset()
	logger.Info("standalone", nil)
	if strings.Contains(buf.String(), "connection=01ABC") {
		t.Fatalf("bound field leaked into parent logger output %q", buf.String())
	}
}

func TestWithEmptyFieldsReturnsSameLogger(t *testing.T) {
	logger, _ := newCapturedLogger(slog.LevelInfo)
	if logger.With(nil) != logger {
		t.Fatal("expected With(nil) to return the receiver")
	}
}

func TestNopLogger(t *testing.T) {
	logger := Nop()
	derived := logger.With(LogFields{"k": "v"})
	derived.Debug("ignored", nil)
	derived.Info("ignored", nil)
	derived.Error("ignored", errors.New("x"), nil)
	derived.Trace("ignored", nil)
}

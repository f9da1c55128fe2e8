package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should not appear")
	logger.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got: %s", buf.String())
	}

	logger.Warn("visible warning")
	if !strings.Contains(buf.String(), "visible warning") {
		t.Fatalf("expected warning in output, got: %s", buf.String())
	}
}

func TestLoggerWithDevice(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	deviceLogger := logger.WithDevice(42)
	deviceLogger.Info("attached")

	if !strings.Contains(buf.String(), "device=42") {
		t.Errorf("expected device=42 in output, got: %s", buf.String())
	}
}

func TestLoggerWithThread(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	threadLogger := logger.WithDevice(1).WithThread("1.2.3.0")
	threadLogger.Debug("stopped", "reason", "sw_breakpoint")

	out := buf.String()
	if !strings.Contains(out, "device=1") || !strings.Contains(out, "thread=1.2.3.0") {
		t.Errorf("expected chained fields in output, got: %s", out)
	}
	if !strings.Contains(out, "reason=sw_breakpoint") {
		t.Errorf("expected key/value args in output, got: %s", out)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	if !strings.Contains(buf.String(), "debug message") || !strings.Contains(buf.String(), "key=value") {
		t.Errorf("expected debug message with args, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %s", buf.String())
	}
}

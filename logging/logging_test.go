package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/ambiyansyah-risyal/svcpipe"
	"github.com/sirupsen/logrus"
)

var (
	_ svcpipe.Logger = (*slog.Logger)(nil)
	_ svcpipe.Logger = (*Logrus)(nil)
)

func TestNewLoggerWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "text", &buf)

	logger.Info("request started", "service", "items")

	output := buf.String()
	if !strings.Contains(output, "request started") {
		t.Errorf("expected 'request started' in output, got: %s", output)
	}
	if !strings.Contains(output, "service=items") {
		t.Errorf("expected 'service=items' in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "JSON", &buf)

	logger.Info("request started", "service", "items")

	output := buf.String()
	if !strings.Contains(output, `"msg":"request started"`) {
		t.Errorf("expected JSON msg field in output, got: %s", output)
	}
	if !strings.Contains(output, `"service":"items"`) {
		t.Errorf("expected JSON service field in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf)

	logger.Info("should not appear")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Errorf("INFO message should be filtered at WARN level, got: %s", output)
	}
	if !strings.Contains(output, "should appear") {
		t.Errorf("WARN message should appear at WARN level, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func newTestLogrus(buf *bytes.Buffer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return l
}

func TestLogrusFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrus(newTestLogrus(&buf))

	logger.Warn("retrying request", "attempt", 2, "service", "items")

	output := buf.String()
	for _, want := range []string{"level=warning", `msg="retrying request"`, "attempt=2", "service=items"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestLogrusWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrus(newTestLogrus(&buf)).With("component", "cache")

	logger.Debug("cache hit", "key", "/items")

	output := buf.String()
	if !strings.Contains(output, "component=cache") || !strings.Contains(output, "key=/items") {
		t.Errorf("expected inherited and call fields, got: %s", output)
	}
}

func TestLogrusOddArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrus(newTestLogrus(&buf))

	logger.Error("service error", 7, "x", "dangling")

	output := buf.String()
	if !strings.Contains(output, "7=x") {
		t.Errorf("expected non-string key to be formatted, got: %s", output)
	}
	if !strings.Contains(output, "!BADKEY=dangling") {
		t.Errorf("expected dangling value under !BADKEY, got: %s", output)
	}
}

func TestLogrusLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"info":  logrus.InfoLevel,
		"":      logrus.InfoLevel,
	}
	for in, want := range tests {
		if got := LogrusLevel(in); got != want {
			t.Errorf("LogrusLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dounotify/internal/config"
)

func TestNewRequiresSink(t *testing.T) {
	t.Parallel()

	if _, _, err := New(config.LogConfig{}); err == nil {
		t.Fatalf("expected error without enabled sinks")
	}
}

func TestFileSinkWritesJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dounotify.log")
	logger, closeFn, err := New(config.LogConfig{File: config.LogSinkConfig{
		Enabled:    true,
		Level:      "info",
		Format:     "json",
		Path:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("dispatch finished", "dag_id", "dou_daily", "channel", "email")
	closeFn()

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), body)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "dispatch finished" || record["dag_id"] != "dou_daily" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestFileSinkRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, _, err := buildFileHandler(config.LogSinkConfig{
		Enabled: true,
		Level:   "info",
		Format:  "xml",
		Path:    filepath.Join(t.TempDir(), "x.log"),
	})
	if err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestFanoutHandlerByLevel(t *testing.T) {
	t.Parallel()

	var debugBuf, errorBuf bytes.Buffer
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	errorHandler := slog.NewJSONHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(fanoutHandler{handlers: []slog.Handler{debugHandler, errorHandler}}).With("run_id", "r1")

	logger.Info("info record")
	logger.Error("error record")

	if strings.Count(debugBuf.String(), "\n") != 2 {
		t.Fatalf("debug sink expected 2 records, got %q", debugBuf.String())
	}
	if strings.Count(errorBuf.String(), "\n") != 1 || !strings.Contains(errorBuf.String(), `"run_id":"r1"`) {
		t.Fatalf("error sink unexpected output %q", errorBuf.String())
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("fanout must be enabled when any sink accepts the level")
	}
}

func TestConsoleLineColors(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	handler, err := buildConsoleHandler(config.LogSinkConfig{Level: "debug", Format: "line"}, &out)
	if err != nil {
		t.Fatalf("console handler: %v", err)
	}
	slog.New(handler).Warn("webhook failed", "status", 500)

	line := out.String()
	if !strings.HasPrefix(line, ansiYellow) || !strings.Contains(line, ansiReset) {
		t.Fatalf("expected colored line, got %q", line)
	}
	if strings.Contains(line, "time=") {
		t.Fatalf("console line must omit time: %q", line)
	}
}

func TestHighlightKeys(t *testing.T) {
	t.Parallel()

	line := `level=ERROR msg="notification failed" dag_id=licitacoes channel=slack error="webhook status=400"`
	got := highlightKeys(line, ansiRed)

	for _, want := range []string{
		"dag_id=" + ansiCyan + "licitacoes" + ansiReset + ansiRed,
		"channel=" + ansiGreen + "slack" + ansiReset + ansiRed,
		"error=" + ansiMagenta + `"webhook status=400"` + ansiReset + ansiRed,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing highlight %q in %q", want, got)
		}
	}
	if !strings.Contains(got, `msg="notification failed"`) {
		t.Fatalf("message must stay untouched: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  slog.Level
		err   bool
	}{
		{value: "debug", want: slog.LevelDebug},
		{value: " INFO ", want: slog.LevelInfo},
		{value: "warn", want: slog.LevelWarn},
		{value: "error", want: slog.LevelError},
		{value: "trace", want: slog.LevelInfo, err: true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.value)
		if (err != nil) != tt.err {
			t.Fatalf("parseLevel(%q) err=%v", tt.value, err)
		}
		if got != tt.want {
			t.Fatalf("parseLevel(%q)=%v want %v", tt.value, got, tt.want)
		}
	}
}

package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewHandler_Formats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newHandler(&buf, LogConfig{Level: "info"})).Info("join.recorded", "chat_id", int64(-100))
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json output: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "join.recorded" || rec["chat_id"].(float64) != -100 {
		t.Fatalf("record=%v", rec)
	}

	buf.Reset()
	slog.New(newHandler(&buf, LogConfig{Level: "warn", Format: "TEXT"})).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	slog.New(newHandler(&buf, LogConfig{Format: "text"})).Info("report.built")
	if !strings.Contains(buf.String(), "msg=report.built") {
		t.Fatalf("text output=%q", buf.String())
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invitetrack.log")

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	log, closer := NewLogger(LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
	log.Debug("scheduler.next")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "scheduler.next") {
		t.Fatalf("log file=%q", b)
	}
}

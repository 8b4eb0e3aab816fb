package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerTo_TagsService(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "timetable-service", slog.LevelInfo).Info("hello")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if line["service"] != "timetable-service" || line["msg"] != "hello" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestReadyz_ReportsFailures(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var report readyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Checks["db"] != "ok" || report.Checks["redis"] != "down" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestLoadEnvFiles_SkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("TIMETABLE_TEST_A=file\nTIMETABLE_TEST_B=file\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TIMETABLE_TEST_A", "env")
	os.Unsetenv("TIMETABLE_TEST_B")
	t.Cleanup(func() { os.Unsetenv("TIMETABLE_TEST_B") })

	loaded, err := LoadEnvFiles(filepath.Join(dir, "missing.env"), path)
	if err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if len(loaded) != 1 || !strings.HasSuffix(loaded[0], "test.env") {
		t.Fatalf("unexpected loaded files: %v", loaded)
	}
	if os.Getenv("TIMETABLE_TEST_A") != "env" || os.Getenv("TIMETABLE_TEST_B") != "file" {
		t.Fatalf("unexpected env: A=%q B=%q", os.Getenv("TIMETABLE_TEST_A"), os.Getenv("TIMETABLE_TEST_B"))
	}
}

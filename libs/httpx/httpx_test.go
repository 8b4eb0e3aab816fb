package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mk("a"), mk("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestWithRequestID_EchoesOrGenerates(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("expected echoed id, got ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc" {
		t.Fatalf("expected generated id, got %q", seen)
	}
}

func TestWithCORS_Preflight(t *testing.T) {
	h := WithCORS(DefaultCORSPolicy([]string{"https://portal.example"}))(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/timetable/sessions", nil)
	req.Header.Set("Origin", "https://portal.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://portal.example" {
		t.Fatalf("missing allow-origin: %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected allow-origin for foreign origin")
	}
}

func TestMemoryLimiter_Burst(t *testing.T) {
	l := NewMemoryLimiter(3)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ctx, "10.0.0.1"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	if ok, _ := l.Allow(ctx, "10.0.0.1"); ok {
		t.Fatal("fourth request should be limited")
	}
	if ok, _ := l.Allow(ctx, "10.0.0.2"); !ok {
		t.Fatal("other client should pass")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestWithRateLimit_FailOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	WithRateLimit(failingLimiter{}, logger, true)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("fail-open: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	WithRateLimit(failingLimiter{}, logger, false)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed: expected 503, got %d", rec.Code)
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Date string `json:"date"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"date":"2025-01-06"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Date != "2025-01-06" {
		t.Fatalf("DecodeJSON: %v %+v", err, dst)
	}
	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"date":"x","extra":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected unknown field error")
	}
	req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected empty body error")
	}
}

func TestWithRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := WithRecover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRedisLimiter_BucketKeyRollsWithWindow(t *testing.T) {
	rl := NewRedisLimiter(nil, 10, time.Minute, "")
	now := time.Date(2025, 1, 6, 9, 0, 10, 0, time.UTC)
	rl.now = func() time.Time { return now }
	first := rl.bucketKey("10.0.0.1")
	now = now.Add(30 * time.Second)
	if rl.bucketKey("10.0.0.1") != first {
		t.Fatal("same window must share a key")
	}
	now = now.Add(time.Minute)
	if rl.bucketKey("10.0.0.1") == first {
		t.Fatal("next window must use a new key")
	}
	if !strings.HasPrefix(first, "timetable:rl:10.0.0.1:") {
		t.Fatalf("unexpected key %q", first)
	}
}

package config

import (
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	t.Setenv("TEST_PORT", "")
	if p, err := Port("TEST_PORT", "8080"); err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q %v", p, err)
	}
}

func TestIntAndSeconds(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if n, err := Int("TEST_INT", 1); err != nil || n != 42 {
		t.Fatalf("Int = %d %v", n, err)
	}
	t.Setenv("TEST_INT", "forty")
	if _, err := Int("TEST_INT", 1); err == nil {
		t.Fatal("expected error for non-integer")
	}

	t.Setenv("TEST_SECONDS", "30")
	if d, err := Seconds("TEST_SECONDS", time.Minute); err != nil || d != 30*time.Second {
		t.Fatalf("Seconds = %v %v", d, err)
	}
	t.Setenv("TEST_SECONDS", "0")
	if _, err := Seconds("TEST_SECONDS", time.Minute); err == nil {
		t.Fatal("expected error for zero seconds")
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("TEST_BOOL", "off")
	if Bool("TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if !Bool("TEST_BOOL", true) {
		t.Fatal("expected fallback true")
	}

	t.Setenv("TEST_LIST", " a, ,b ,c")
	got := List("TEST_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list %v", got)
	}
}

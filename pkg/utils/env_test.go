package utils

import (
	"math/big"
	"os"
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	const key = "UTIL_TEST_STRING"
	_ = os.Unsetenv(key)
	if got := EnvOrDefault(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	_ = os.Setenv(key, "value")
	if got := EnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestEnvOrDefaultInt(t *testing.T) {
	const key = "UTIL_TEST_INT"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultInt(key, 10); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	_ = os.Setenv(key, "5")
	if got := EnvOrDefaultInt(key, 10); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultInt(key, 7); got != 7 {
		t.Fatalf("expected fallback on parse error, got %d", got)
	}
}

func TestEnvOrDefaultUint64(t *testing.T) {
	const key = "UTIL_TEST_UINT64"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultUint64(key, 99); got != 99 {
		t.Fatalf("expected 99, got %d", got)
	}
	_ = os.Setenv(key, "42")
	if got := EnvOrDefaultUint64(key, 99); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultUint64(key, 77); got != 77 {
		t.Fatalf("expected fallback on parse error, got %d", got)
	}
}

func TestEnvOrDefaultDuration(t *testing.T) {
	const key = "UTIL_TEST_DURATION"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultDuration(key, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected 30s, got %s", got)
	}
	_ = os.Setenv(key, "5m")
	if got := EnvOrDefaultDuration(key, 30*time.Second); got != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultDuration(key, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected fallback on parse error, got %s", got)
	}
}

func TestEnvOrDefaultBigInt(t *testing.T) {
	const key = "UTIL_TEST_BIGINT"
	fallback := big.NewInt(100)
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultBigInt(key, fallback); got.Cmp(fallback) != 0 {
		t.Fatalf("expected %s, got %s", fallback, got)
	}
	_ = os.Setenv(key, "123456789012345678901234567890")
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if got := EnvOrDefaultBigInt(key, fallback); got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
	_ = os.Setenv(key, "not-a-number")
	if got := EnvOrDefaultBigInt(key, fallback); got.Cmp(fallback) != 0 {
		t.Fatalf("expected fallback on parse error, got %s", got)
	}
}

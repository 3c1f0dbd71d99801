package config

import (
	"testing"
	"time"
)

func TestEnvOrFallsBackWhenUnset(t *testing.T) {
	t.Setenv("RINGS_TEST_ENVOR", "")
	if got := envOr("RINGS_TEST_ENVOR_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("RINGS_TEST_ENVOR", "value")
	if got := envOr("RINGS_TEST_ENVOR", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestEnvBoolOrParsesTruthyStrings(t *testing.T) {
	for _, v := range []string{"1", "true", "yes"} {
		t.Setenv("RINGS_TEST_ENVBOOL", v)
		if !envBoolOr("RINGS_TEST_ENVBOOL", false) {
			t.Fatalf("expected %q to parse as true", v)
		}
	}
}

func TestEnvDurationOrFallsBackOnBadValue(t *testing.T) {
	t.Setenv("RINGS_TEST_ENVDUR", "not-a-duration")
	if got := envDurationOr("RINGS_TEST_ENVDUR", 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected fallback duration, got %v", got)
	}
	t.Setenv("RINGS_TEST_ENVDUR", "10s")
	if got := envDurationOr("RINGS_TEST_ENVDUR", 5*time.Second); got != 10*time.Second {
		t.Fatalf("expected 10s, got %v", got)
	}
}

func TestLoadOrGenerateKeyGeneratesWhenEmpty(t *testing.T) {
	kp, err := loadOrGenerateKey("")
	if err != nil {
		t.Fatalf("loadOrGenerateKey: %v", err)
	}
	if kp == nil || kp.Private == nil {
		t.Fatal("expected a generated keypair")
	}
}

func TestLoadOrGenerateKeyRejectsBadHex(t *testing.T) {
	if _, err := loadOrGenerateKey("not-hex"); err == nil {
		t.Fatal("expected an error for invalid hex")
	}
}

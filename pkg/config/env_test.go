package config

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("SQUEEGEE_TEST_KEY", "value")
	if got := GetEnv("SQUEEGEE_TEST_KEY", "fallback"); got != "value" {
		t.Errorf("expected value, got %q", got)
	}
	if got := GetEnv("SQUEEGEE_MISSING_KEY", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SQUEEGEE_TEST_INT", "42")
	if got := GetEnvInt("SQUEEGEE_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	t.Setenv("SQUEEGEE_TEST_INT", "not-a-number")
	if got := GetEnvInt("SQUEEGEE_TEST_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("SQUEEGEE_TEST_BOOL", "true")
	if !GetEnvBool("SQUEEGEE_TEST_BOOL", false) {
		t.Error("expected true")
	}

	t.Setenv("SQUEEGEE_TEST_BOOL", "nonsense")
	if GetEnvBool("SQUEEGEE_TEST_BOOL", false) {
		t.Error("expected fallback false for unparsable value")
	}
}

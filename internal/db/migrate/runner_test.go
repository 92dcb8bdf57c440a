package migrate

import (
	"errors"
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", Up, nil)
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Errorf("error message = %q, should mention DATABASE_URL", err.Error())
	}
}

func TestParseDirection(t *testing.T) {
	for _, ok := range []string{"up", "down"} {
		if d, err := ParseDirection(ok); err != nil || string(d) != ok {
			t.Errorf("ParseDirection(%q) = %q, %v", ok, d, err)
		}
	}
	for _, bad := range []string{"", "invalid", "UP", "Up", "both"} {
		if _, err := ParseDirection(bad); err == nil {
			t.Errorf("ParseDirection(%q) should fail", bad)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	err := Run("postgres://localhost/test", Direction("sideways"), nil)
	if err == nil || !strings.Contains(err.Error(), "direction") {
		t.Errorf("err = %v, want direction error", err)
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test"} {
		if err := Run(dsn, Up, nil); err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
	}
}

func TestErrNoChange(t *testing.T) {
	if ErrNoChange == nil {
		t.Fatal("ErrNoChange should not be nil")
	}
	if !errors.Is(ErrNoChange, ErrNoChange) {
		t.Error("ErrNoChange should be errors.Is compatible")
	}
}

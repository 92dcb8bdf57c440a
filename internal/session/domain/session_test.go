package domain

import (
	"testing"
	"time"
)

func TestSession_IsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		status Status
		expiry time.Time
		want   bool
	}{
		{"active before expiry", StatusActive, now.Add(time.Minute), true},
		{"active at expiry", StatusActive, now, false},
		{"active after expiry", StatusActive, now.Add(-time.Minute), false},
		{"rotated", StatusRotated, now.Add(time.Hour), false},
		{"revoked", StatusRevoked, now.Add(time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Session{Status: tc.status, RefreshTokenExpiry: tc.expiry}
			if got := s.IsActive(now); got != tc.want {
				t.Errorf("IsActive = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusRotated, StatusRevoked} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("paused").Valid() {
		t.Error(`"paused" should not be valid`)
	}
}

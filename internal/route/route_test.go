package route

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/guard"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	authed := guard.State{Kind: guard.Authenticated, SessionID: "s1", AccessToken: "tok", AccessTokenExpiry: now.Add(time.Minute)}
	tests := []struct {
		name string
		st   guard.State
		want guard.Decision
	}{
		{"authenticated", authed, guard.Allow},
		{"expired token", guard.State{Kind: guard.Authenticated, AccessToken: "tok", AccessTokenExpiry: now}, guard.RedirectLogin},
		{"unauthenticated", guard.State{}, guard.RedirectLogin},
		{"refreshing", guard.State{Kind: guard.Refreshing, AccessToken: "tok", AccessTokenExpiry: now.Add(time.Minute)}, guard.RedirectLogin},
		{"authenticating", guard.State{Kind: guard.Authenticating}, guard.RedirectLogin},
		{"expired state", guard.State{Kind: guard.Expired}, guard.RedirectLogin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.st, now); got != tt.want {
				t.Errorf("Decide = %+v, want %+v", got, tt.want)
			}
		})
	}
	if loc := Decide(guard.State{}, now).Location; loc != "/login" {
		t.Errorf("redirect location = %q", loc)
	}
}

type stubGuard struct {
	calls int
	d     guard.Decision
	err   error
}

func (s *stubGuard) EnsureFresh(context.Context) (guard.Decision, error) {
	s.calls++
	return s.d, s.err
}

func TestNavigate(t *testing.T) {
	tests := []struct {
		path      string
		guard     *stubGuard
		want      guard.Decision
		wantCalls int
	}{
		{"/login", &stubGuard{d: guard.RedirectLogin}, guard.Allow, 0},
		{"/register", &stubGuard{d: guard.RedirectLogin}, guard.Allow, 0},
		{"/", &stubGuard{d: guard.Allow}, guard.Allow, 1},
		{"/groups", &stubGuard{d: guard.RedirectLogin}, guard.RedirectLogin, 1},
		{"/groups/42", &stubGuard{d: guard.Allow}, guard.Allow, 1},
		{"/places", &stubGuard{d: guard.Allow}, guard.Allow, 1},
		{"/admin/unknown", &stubGuard{d: guard.RedirectLogin}, guard.RedirectLogin, 1},
		{"/groups", &stubGuard{d: guard.Allow, err: guard.ErrTemporarilyUnavailable}, guard.RedirectLogin, 1},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			a := NewAuthorizer(tt.guard, nil)
			got, err := a.Navigate(context.Background(), tt.path)
			if got != tt.want {
				t.Errorf("Navigate(%s) = %+v, want %+v", tt.path, got, tt.want)
			}
			if tt.guard.err != nil && !errors.Is(err, tt.guard.err) {
				t.Errorf("err = %v", err)
			}
			if tt.guard.calls != tt.wantCalls {
				t.Errorf("EnsureFresh calls = %d, want %d", tt.guard.calls, tt.wantCalls)
			}
		})
	}
}

package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	now := time.Now()
	token, exp, err := p.IssueAccess("s1", "p1", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("access token empty")
	}
	if want := now.UTC().Truncate(time.Second).Add(15 * time.Minute); !exp.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", exp, want)
	}

	got, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if got.SessionID != "s1" || got.PrincipalID != "p1" {
		t.Errorf("ValidateAccess: got session=%q principal=%q", got.SessionID, got.PrincipalID)
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
	}
}

func TestTokenProvider_ValidateAccessExpired(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	issued := time.Now().Add(-time.Hour)
	token, _, err := p.IssueAccess("s1", "p1", issued)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ClockAndLeeway(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token, _, err := p.IssueAccess("s1", "p1", base)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	p.WithClock(func() time.Time { return base.Add(16 * time.Minute) })
	if _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("after 16m: want ErrInvalidToken, got %v", err)
	}

	p.WithLeeway(2 * time.Minute)
	if _, err := p.ValidateAccess(token); err != nil {
		t.Errorf("after 16m with 2m leeway: %v", err)
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateAccess invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_RejectsForeignKey(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	signer, pub, err := GenerateEphemeralKey()
	if err != nil {
		t.Fatalf("GenerateEphemeralKey: %v", err)
	}
	other := NewTokenProvider(signer, pub, "test-issuer", "test-audience", 15*time.Minute)
	token, _, err := other.IssueAccess("s1", "p1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("token from another key: want ErrInvalidToken, got %v", err)
	}
	if _, err := other.ValidateAccess(token); err != nil {
		t.Errorf("ES256 round trip: %v", err)
	}
}

func TestTokenProvider_RejectsWrongAudience(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.IssueAccess("s1", "p1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	signer, err := testKey()
	if err != nil {
		t.Fatal(err)
	}
	q := NewTokenProvider(signer, signer.Public(), "test-issuer", "other-audience", 15*time.Minute)
	if _, err := q.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("wrong audience: want ErrInvalidToken, got %v", err)
	}
}

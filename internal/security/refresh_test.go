package security

import (
	"strings"
	"testing"
)

func TestNewRefreshToken(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		tok, err := NewRefreshToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != 43 {
			t.Fatalf("len = %d, want 43 (32 bytes base64url)", len(tok))
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Fatalf("refresh token %q is not raw base64url", tok)
		}
		if seen[tok] {
			t.Fatal("duplicate refresh token")
		}
		seen[tok] = true
	}
}

func TestMatchesRefreshHash(t *testing.T) {
	stored := HashRefreshToken("correct")
	if len(stored) != 64 {
		t.Fatalf("hash length = %d, want 64", len(stored))
	}
	cases := []struct {
		name   string
		token  string
		stored string
		want   bool
	}{
		{"match", "correct", stored, true},
		{"wrong token", "wrong", stored, false},
		{"prefixed hash", "correct", "a" + stored, false},
		{"empty token", "", stored, false},
		{"empty hash", "correct", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchesRefreshHash(tc.token, tc.stored); got != tc.want {
				t.Errorf("MatchesRefreshHash = %v, want %v", got, tc.want)
			}
		})
	}
}

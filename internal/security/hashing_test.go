package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash([]byte("correct-pw"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Compare(hash, []byte("correct-pw")); err != nil {
		t.Errorf("Compare(correct): %v", err)
	}
	if err := h.Compare(hash, []byte("wrong-pw")); !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		t.Errorf("Compare(wrong) = %v, want ErrMismatchedHashAndPassword", err)
	}
	if err := h.Compare("not-a-hash", []byte("correct-pw")); err == nil {
		t.Error("Compare(malformed hash): want error")
	}
}

func TestNewHasher_ClampsCost(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{0, bcrypt.DefaultCost},
		{-1, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{12, 12},
		{99, bcrypt.MaxCost},
	} {
		if got := NewHasher(tc.in).Cost; got != tc.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestHasher_CompareDummyUsesHasherCost(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	h.CompareDummy([]byte("anything"))
	cost, err := bcrypt.Cost(h.dummy)
	if err != nil {
		t.Fatalf("dummy hash: %v", err)
	}
	if cost != bcrypt.MinCost {
		t.Errorf("dummy cost = %d, want %d", cost, bcrypt.MinCost)
	}
}

package domain

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}

func TestPrincipal_Validate(t *testing.T) {
	p := &Principal{ID: "p1", Email: "a@b.c", CredentialHash: "$2a$"}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.Status != PrincipalStatusActive {
		t.Errorf("Status = %q, want active", p.Status)
	}
	for name, bad := range map[string]*Principal{
		"no id":    {Email: "a@b.c", CredentialHash: "x"},
		"no email": {ID: "p1", CredentialHash: "x"},
		"no hash":  {ID: "p1", Email: "a@b.c"},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

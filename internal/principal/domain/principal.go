package domain

import (
	"errors"
	"strings"
	"time"
)

// Principal is the authenticated party a session belongs to.
type Principal struct {
	ID             string
	Email          string // lower-cased, unique
	DisplayName    string
	CredentialHash string // bcrypt
	Status         PrincipalStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type PrincipalStatus string

const (
	PrincipalStatusActive   PrincipalStatus = "active"
	PrincipalStatusDisabled PrincipalStatus = "disabled"
)

// NormalizeEmail trims and lower-cases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the principal for persistence. Returns an error describing the first validation failure.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Email == "" {
		return errors.New("email is required")
	}
	if p.CredentialHash == "" {
		return errors.New("credential hash is required")
	}
	if p.Status == "" {
		p.Status = PrincipalStatusActive
	}
	return nil
}

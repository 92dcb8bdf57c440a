package domain

import "time"

// Status is the lifecycle state of a session row.
type Status string

const (
	// StatusActive rows hold the only refresh-token hash that may be rotated.
	StatusActive Status = "active"
	// StatusRotated rows were exchanged for a successor; presenting their token again is reuse.
	StatusRotated Status = "rotated"
	// StatusRevoked rows were ended by logout or reuse detection.
	StatusRevoked Status = "revoked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRotated, StatusRevoked:
		return true
	}
	return false
}

// Session is one row of a login's rotation chain. Every rotation retires the
// current row and inserts a successor sharing the same FamilyID.
type Session struct {
	ID          string
	PrincipalID string
	// FamilyID is the ID of the first row of the chain (equal to ID for that row).
	FamilyID string
	// ParentID is the predecessor row; empty for the row created at login.
	ParentID string
	// RefreshTokenHash is the SHA-256 hex of the refresh token; the raw token is never stored.
	RefreshTokenHash   string
	AccessTokenExpiry  time.Time
	RefreshTokenExpiry time.Time
	Status             Status
	CreatedAt          time.Time
	LastRefreshedAt    *time.Time // nil until the row is rotated
	ReplacedBy         string     // successor ID once rotated
	RevokedAt          *time.Time // nil when not revoked
}

// IsExpired reports whether the refresh token of s is dead at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.RefreshTokenExpiry)
}

// IsActive reports whether s may still be rotated at now.
func (s *Session) IsActive(now time.Time) bool {
	return s.Status == StatusActive && !s.IsExpired(now)
}

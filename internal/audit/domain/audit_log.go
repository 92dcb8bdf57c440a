package domain

import "time"

// Audit actions recorded for the session lifecycle.
const (
	ActionLoginSuccess   = "login_success"
	ActionLoginFailure   = "login_failure"
	ActionSessionRotated = "session_rotated"
	ActionReuseDetected  = "refresh_reuse_detected"
	ActionLogout         = "logout"
	ActionRevokeAll      = "revoke_all"
	ActionRegister       = "register"
)

// AuditLog represents an audit event. PrincipalID and SessionID are empty when
// the event has no known principal (e.g. a failed login for an unknown email).
type AuditLog struct {
	ID          string
	PrincipalID string
	SessionID   string
	Action      string
	IP          string
	Metadata    string
	CreatedAt   time.Time
}

package domain

import "time"

// Event types emitted by the session lifecycle.
const (
	EventSessionIssued      = "session_issued"
	EventSessionRotated     = "session_rotated"
	EventRefreshReuse       = "refresh_reuse_detected"
	EventSessionRevoked     = "session_revoked"
	EventSessionsRevokedAll = "sessions_revoked_all"
	EventLoginFailed        = "login_failed"
	EventHTTPRequest        = "http_request"
)

// Event is a security telemetry event. It is serialized as JSON onto Kafka and
// read back by the Loki worker, so field names are part of the wire format.
type Event struct {
	PrincipalID string            `json:"principalId,omitempty"`
	SessionID   string            `json:"sessionId,omitempty"`
	EventType   string            `json:"eventType"`
	Source      string            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

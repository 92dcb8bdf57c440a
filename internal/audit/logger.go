package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit/domain"
	auditrepo "github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Used by the issuer and the auth handlers.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, principalID, sessionID, action, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". A nil repo only writes to the application log.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log logrus.FieldLogger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, principalID, sessionID, action, metadata string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	fields := logrus.Fields{"event": action, "principal_id": principalID, "session_id": sessionID, "ip": ip}
	if l.repo == nil {
		l.log.WithFields(fields).Info("audit")
		return
	}
	entry := &domain.AuditLog{
		ID:          uuid.New().String(),
		PrincipalID: principalID,
		SessionID:   sessionID,
		Action:      action,
		IP:          ip,
		Metadata:    metadata,
		CreatedAt:   l.now().UTC(),
	}
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.log.WithFields(fields).WithError(err).Warn("audit: failed to log event")
	}
}

// Package issuer mints token pairs and owns the refresh-token rotation protocol.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit"
	auditdomain "github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/observability/metrics"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry"
	telemetrydomain "github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/domain"
)

const eventSource = "issuer"

// Issuer creates sessions, rotates refresh tokens and revokes sessions.
type Issuer struct {
	store      repository.Store
	tokens     *security.TokenProvider
	refreshTTL time.Duration

	now      func() time.Time
	newID    func() string
	log      logrus.FieldLogger
	audit    audit.AuditLogger
	events   telemetry.EventEmitter
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	maxTries uint
	backoff  time.Duration
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock sets the clock used for expiry decisions and timestamps.
func WithClock(now func() time.Time) Option { return func(i *Issuer) { i.now = now } }

// WithIDGenerator sets the session ID generator.
func WithIDGenerator(f func() string) Option { return func(i *Issuer) { i.newID = f } }

func WithLogger(l logrus.FieldLogger) Option { return func(i *Issuer) { i.log = l } }

func WithAuditLogger(a audit.AuditLogger) Option { return func(i *Issuer) { i.audit = a } }

func WithEventEmitter(e telemetry.EventEmitter) Option { return func(i *Issuer) { i.events = e } }

func WithMetrics(m *metrics.Metrics) Option { return func(i *Issuer) { i.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(i *Issuer) { i.tracer = t } }

// WithRetry sets how many times store reads and revocations are attempted on
// ErrStoreUnavailable, starting at initial and backing off exponentially.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(i *Issuer) { i.maxTries, i.backoff = maxTries, initial }
}

// New returns an Issuer persisting to store and signing with tokens.
func New(store repository.Store, tokens *security.TokenProvider, refreshTTL time.Duration, opts ...Option) *Issuer {
	i := &Issuer{
		store:      store,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		log:        logrus.StandardLogger(),
		tracer:     noop.NewTracerProvider().Tracer("issuer"),
		maxTries:   3,
		backoff:    50 * time.Millisecond,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Issue creates a new session for principalID and returns its first token pair.
func (i *Issuer) Issue(ctx context.Context, principalID string) (*domain.TokenPair, *domain.Session, error) {
	ctx, span := i.tracer.Start(ctx, "issuer.Issue", trace.WithAttributes(attribute.String("principal_id", principalID)))
	defer span.End()

	if principalID == "" {
		return nil, nil, errors.New("issuer: principal id is required")
	}
	id := i.newID()
	pair, s, err := i.mint(id, principalID, i.now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	s.FamilyID = id
	if _, err := retry(ctx, i, func() (struct{}, error) { return struct{}{}, i.store.Create(ctx, s) }); err != nil {
		span.SetStatus(codes.Error, "create session")
		return nil, nil, storeErr(err)
	}
	i.metrics.SessionIssued()
	i.auditEvent(ctx, principalID, id, auditdomain.ActionLoginSuccess, "")
	i.emit(ctx, principalID, id, telemetrydomain.EventSessionIssued, nil)
	i.log.WithFields(logrus.Fields{"session_id": id, "principal_id": principalID}).Info("session issued")
	return pair, s, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// invalidated whether or not the caller receives the reply.
//
// Verdicts: ErrRotationNotFound, ErrRotationReused (every session of the
// principal is revoked first), ErrRotationExpired. Store failures are returned
// wrapping ErrStoreUnavailable and leave the token usable.
func (i *Issuer) Rotate(ctx context.Context, presented string) (*domain.TokenPair, error) {
	ctx, span := i.tracer.Start(ctx, "issuer.Rotate")
	defer span.End()

	pair, outcome, err := i.rotate(ctx, presented)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil && !IsTerminal(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	i.metrics.Rotation(outcome)
	return pair, err
}

func (i *Issuer) rotate(ctx context.Context, presented string) (*domain.TokenPair, string, error) {
	if presented == "" {
		return nil, "not_found", ErrRotationNotFound
	}
	hash := security.HashRefreshToken(presented)
	row, err := retry(ctx, i, func() (*domain.Session, error) { return i.store.FindByHash(ctx, hash) })
	if err != nil {
		return nil, "unavailable", storeErr(err)
	}
	if row == nil || !security.MatchesRefreshHash(presented, row.RefreshTokenHash) {
		return nil, "not_found", ErrRotationNotFound
	}
	if row.Status != domain.StatusActive {
		i.reuseDetected(ctx, row)
		return nil, "reused", ErrRotationReused
	}
	now := i.now().UTC()
	if row.IsExpired(now) {
		return nil, "expired", ErrRotationExpired
	}

	nextID := i.newID()
	pair, next, err := i.mint(nextID, row.PrincipalID, now)
	if err != nil {
		return nil, "error", err
	}
	next.FamilyID = row.FamilyID
	next.ParentID = row.ID

	// Never retried: a lost acknowledgement must not be replayed against the new state.
	ok, err := i.store.AtomicRotate(ctx, hash, next)
	if err != nil {
		return nil, "unavailable", storeErr(err)
	}
	if !ok {
		i.reuseDetected(ctx, row)
		return nil, "reused", ErrRotationReused
	}
	i.auditEvent(ctx, row.PrincipalID, row.ID, auditdomain.ActionSessionRotated, `{"successor":"`+nextID+`"}`)
	i.emit(ctx, row.PrincipalID, nextID, telemetrydomain.EventSessionRotated, map[string]string{"parent": row.ID})
	i.log.WithFields(logrus.Fields{"session_id": nextID, "parent_id": row.ID, "principal_id": row.PrincipalID}).Debug("session rotated")
	return pair, "success", nil
}

// reuseDetected revokes every session of the row's principal. A failure to
// revoke is logged; the rotation is still refused.
func (i *Issuer) reuseDetected(ctx context.Context, row *domain.Session) {
	log := i.log.WithFields(logrus.Fields{
		"event": auditdomain.ActionReuseDetected, "session_id": row.ID, "family_id": row.FamilyID, "principal_id": row.PrincipalID,
	})
	n, err := retry(ctx, i, func() (int, error) { return i.store.RevokeAllForPrincipal(ctx, row.PrincipalID) })
	if err != nil {
		log.WithError(err).Error("refresh token reuse detected; revoking sessions failed")
	} else {
		log.WithField("revoked", n).Warn("refresh token reuse detected; all sessions revoked")
	}
	i.metrics.Revoked("reuse", n)
	i.auditEvent(ctx, row.PrincipalID, row.ID, auditdomain.ActionReuseDetected, `{"revoked":`+strconv.Itoa(n)+`}`)
	i.emit(ctx, row.PrincipalID, row.ID, telemetrydomain.EventRefreshReuse, map[string]string{"revoked": strconv.Itoa(n)})
}

// Revoke ends one session. Unknown and already-revoked sessions are a no-op.
func (i *Issuer) Revoke(ctx context.Context, sessionID string) error {
	ctx, span := i.tracer.Start(ctx, "issuer.Revoke", trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	row, err := retry(ctx, i, func() (*domain.Session, error) { return i.store.GetByID(ctx, sessionID) })
	if err != nil {
		return storeErr(err)
	}
	if row == nil || row.Status == domain.StatusRevoked {
		return nil
	}
	if _, err := retry(ctx, i, func() (struct{}, error) { return struct{}{}, i.store.Revoke(ctx, sessionID) }); err != nil {
		return storeErr(err)
	}
	i.metrics.Revoked("logout", 1)
	i.auditEvent(ctx, row.PrincipalID, sessionID, auditdomain.ActionLogout, "")
	i.emit(ctx, row.PrincipalID, sessionID, telemetrydomain.EventSessionRevoked, nil)
	return nil
}

// RevokeRefreshToken ends the session holding the presented refresh token.
// Unknown tokens are a no-op so logout never reveals token validity.
func (i *Issuer) RevokeRefreshToken(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	hash := security.HashRefreshToken(presented)
	row, err := retry(ctx, i, func() (*domain.Session, error) { return i.store.FindByHash(ctx, hash) })
	if err != nil {
		return storeErr(err)
	}
	if row == nil {
		return nil
	}
	return i.Revoke(ctx, row.ID)
}

// RevokeAllForPrincipal ends every session of principalID and returns how many were active or rotated.
func (i *Issuer) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	ctx, span := i.tracer.Start(ctx, "issuer.RevokeAllForPrincipal", trace.WithAttributes(attribute.String("principal_id", principalID)))
	defer span.End()

	n, err := retry(ctx, i, func() (int, error) { return i.store.RevokeAllForPrincipal(ctx, principalID) })
	if err != nil {
		return 0, storeErr(err)
	}
	i.metrics.Revoked("logout_all", n)
	i.auditEvent(ctx, principalID, "", auditdomain.ActionRevokeAll, `{"revoked":`+strconv.Itoa(n)+`}`)
	i.emit(ctx, principalID, "", telemetrydomain.EventSessionsRevokedAll, map[string]string{"revoked": strconv.Itoa(n)})
	return n, nil
}

// ListActive returns the principal's active sessions, newest first.
func (i *Issuer) ListActive(ctx context.Context, principalID string) ([]*domain.Session, error) {
	list, err := retry(ctx, i, func() ([]*domain.Session, error) { return i.store.ListByPrincipal(ctx, principalID) })
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

func (i *Issuer) mint(id, principalID string, now time.Time) (*domain.TokenPair, *domain.Session, error) {
	refresh, err := security.NewRefreshToken()
	if err != nil {
		return nil, nil, fmt.Errorf("issuer: refresh token: %w", err)
	}
	access, accessExp, err := i.tokens.IssueAccess(id, principalID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("issuer: access token: %w", err)
	}
	refreshExp := now.Add(i.refreshTTL)
	s := &domain.Session{
		ID:                 id,
		PrincipalID:        principalID,
		RefreshTokenHash:   security.HashRefreshToken(refresh),
		AccessTokenExpiry:  accessExp,
		RefreshTokenExpiry: refreshExp,
		Status:             domain.StatusActive,
		CreatedAt:          now,
	}
	pair := &domain.TokenPair{
		SessionID:          id,
		PrincipalID:        principalID,
		AccessToken:        access,
		AccessTokenExpiry:  accessExp,
		RefreshToken:       refresh,
		RefreshTokenExpiry: refreshExp,
	}
	return pair, s, nil
}

func (i *Issuer) auditEvent(ctx context.Context, principalID, sessionID, action, metadata string) {
	if i.audit != nil {
		i.audit.LogEvent(ctx, principalID, sessionID, action, metadata)
	}
}

func (i *Issuer) emit(ctx context.Context, principalID, sessionID, eventType string, md map[string]string) {
	telemetry.EmitAsync(i.events, ctx, &telemetrydomain.Event{
		PrincipalID: principalID,
		SessionID:   sessionID,
		EventType:   eventType,
		Source:      eventSource,
		Metadata:    md,
		CreatedAt:   i.now().UTC(),
	})
}

// retry runs op until it succeeds, fails with something other than
// ErrStoreUnavailable, or the issuer's attempt budget is spent.
func retry[T any](ctx context.Context, i *Issuer, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.backoff
	b.MaxInterval = 20 * i.backoff
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, repository.ErrStoreUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(i.maxTries))
}

// storeErr makes sure a store failure is classified as retryable.
func storeErr(err error) error {
	if errors.Is(err, repository.ErrStoreUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
)

const sessionColumns = `id, principal_id, family_id, parent_id, refresh_token_hash,
	access_token_expires_at, refresh_token_expires_at, status, created_at,
	last_refreshed_at, replaced_by, revoked_at`

const (
	insertSessionSQL = `INSERT INTO sessions (` + sessionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	getSessionSQL        = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	findSessionByHashSQL = `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1`
	markRotatedSQL       = `UPDATE sessions SET status = 'rotated', last_refreshed_at = $2, replaced_by = $3
	WHERE refresh_token_hash = $1 AND status = 'active'`
	revokeSessionSQL = `UPDATE sessions SET status = 'revoked', revoked_at = $2
	WHERE id = $1 AND status <> 'revoked'`
	revokePrincipalSQL = `UPDATE sessions SET status = 'revoked', revoked_at = $2
	WHERE principal_id = $1 AND status <> 'revoked'`
	listActiveSQL = `SELECT ` + sessionColumns + ` FROM sessions
	WHERE principal_id = $1 AND status = 'active' ORDER BY created_at DESC`
)

// PostgresStore is a Store backed by the sessions table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore returns a session store that uses the given db for persistence.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Create persists the session. The session must have ID set.
func (r *PostgresStore) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, insertSessionSQL, insertArgs(s)...)
	return unavailable(err)
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.queryOne(ctx, getSessionSQL, id)
}

// FindByHash returns the session holding refreshTokenHash whatever its status, or nil.
func (r *PostgresStore) FindByHash(ctx context.Context, refreshTokenHash string) (*domain.Session, error) {
	return r.queryOne(ctx, findSessionByHashSQL, refreshTokenHash)
}

// AtomicRotate flips the active row to rotated and inserts next in one transaction.
// Zero rows matched means the token was already rotated or revoked; the
// transaction is rolled back and false returned.
func (r *PostgresStore) AtomicRotate(ctx context.Context, oldHash string, next *domain.Session) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, markRotatedSQL, oldHash, next.CreatedAt, next.ID)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, insertSessionSQL, insertArgs(next)...); err != nil {
		return false, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return false, unavailable(err)
	}
	return true, nil
}

// Revoke marks the session revoked. RevokedAt of an already-revoked row is kept.
func (r *PostgresStore) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, revokeSessionSQL, id, r.now().UTC())
	return unavailable(err)
}

// RevokeAllForPrincipal revokes every non-revoked session of the principal.
func (r *PostgresStore) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	res, err := r.db.ExecContext(ctx, revokePrincipalSQL, principalID, r.now().UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// ListByPrincipal returns active sessions of the principal, newest first.
func (r *PostgresStore) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, listActiveSQL, principalID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, s)
	}
	return out, unavailable(rows.Err())
}

// Ping checks database connectivity.
func (r *PostgresStore) Ping(ctx context.Context) error {
	return unavailable(r.db.PingContext(ctx))
}

func (r *PostgresStore) queryOne(ctx context.Context, query string, arg string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                          domain.Session
		status                     string
		parentID, replacedBy       sql.NullString
		lastRefreshedAt, revokedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.PrincipalID, &s.FamilyID, &parentID, &s.RefreshTokenHash,
		&s.AccessTokenExpiry, &s.RefreshTokenExpiry, &status, &s.CreatedAt,
		&lastRefreshedAt, &replacedBy, &revokedAt)
	if err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	s.ParentID = parentID.String
	s.ReplacedBy = replacedBy.String
	s.LastRefreshedAt = nullTimeToPtr(lastRefreshedAt)
	s.RevokedAt = nullTimeToPtr(revokedAt)
	return &s, nil
}

func insertArgs(s *domain.Session) []any {
	return []any{
		s.ID, s.PrincipalID, s.FamilyID, nullString(s.ParentID), s.RefreshTokenHash,
		s.AccessTokenExpiry, s.RefreshTokenExpiry, string(s.Status), s.CreatedAt,
		timeToNullTime(s.LastRefreshedAt), nullString(s.ReplacedBy), timeToNullTime(s.RevokedAt),
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

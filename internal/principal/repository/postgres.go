package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/domain"
)

const (
	principalColumns   = `id, email, display_name, credential_hash, status, created_at, updated_at`
	getPrincipalSQL    = `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	getByEmailSQL      = `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`
	insertPrincipalSQL = `INSERT INTO principals (` + principalColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a principal repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the principal for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.queryOne(ctx, getPrincipalSQL, id)
}

// GetByEmail returns the principal with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.queryOne(ctx, getByEmailSQL, domain.NormalizeEmail(email))
}

// Create persists the principal. The principal must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	display := sql.NullString{String: p.DisplayName, Valid: p.DisplayName != ""}
	_, err := r.db.ExecContext(ctx, insertPrincipalSQL, p.ID, domain.NormalizeEmail(p.Email), display,
		p.CredentialHash, string(p.Status), p.CreatedAt, p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailTaken
	}
	return err
}

func (r *PostgresRepository) queryOne(ctx context.Context, query, arg string) (*domain.Principal, error) {
	var (
		p       domain.Principal
		display sql.NullString
		status  string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&p.ID, &p.Email, &display, &p.CredentialHash,
		&status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.DisplayName = display.String
	p.Status = domain.PrincipalStatus(status)
	return &p, nil
}

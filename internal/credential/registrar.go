package credential

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
)

var (
	ErrEmailTaken   = repository.ErrEmailTaken
	ErrInvalidEmail = errors.New("invalid email format")
	ErrWeakPassword = errors.New("password must be 8 to 72 bytes")
)

// Registrar creates principals with a password credential.
type Registrar struct {
	principals repository.Repository
	hasher     *security.Hasher
	now        func() time.Time
}

func NewRegistrar(principals repository.Repository, hasher *security.Hasher) *Registrar {
	return &Registrar{principals: principals, hasher: hasher, now: time.Now}
}

// Register creates a principal. It does not issue tokens; callers log in afterwards.
func (r *Registrar) Register(ctx context.Context, email, password, displayName string) (*domain.Principal, error) {
	email = domain.NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if len(password) < 8 || len(password) > 72 {
		return nil, ErrWeakPassword
	}
	existing, err := r.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hashed, err := r.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	p := &domain.Principal{
		ID:             uuid.New().String(),
		Email:          email,
		DisplayName:    strings.TrimSpace(displayName),
		CredentialHash: hashed,
		Status:         domain.PrincipalStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.principals.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

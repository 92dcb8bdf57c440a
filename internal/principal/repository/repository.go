package repository

import (
	"context"
	"errors"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/domain"
)

// ErrEmailTaken is returned by Create when another principal already uses the email.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for principals.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	Create(ctx context.Context, p *domain.Principal) error
}

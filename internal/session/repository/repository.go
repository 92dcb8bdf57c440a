package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
)

// ErrStoreUnavailable is returned (possibly wrapped) when the backing store cannot
// answer. Callers treat it as retryable; it never means "session not found".
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store defines persistence for sessions.
//
// Lookups return (nil, nil) when no row matches. AtomicRotate is the only write
// that replaces a refresh-token hash and must be a single compare-and-set: it
// succeeds only if the row holding oldHash is still active.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	FindByHash(ctx context.Context, refreshTokenHash string) (*domain.Session, error)
	// AtomicRotate marks the active row with oldHash as rotated (replaced by next.ID)
	// and inserts next. It returns false, with no changes, when the row is missing
	// or no longer active.
	AtomicRotate(ctx context.Context, oldHash string, next *domain.Session) (bool, error)
	// Revoke marks the session revoked. Already-revoked and unknown IDs are a no-op.
	Revoke(ctx context.Context, id string) error
	// RevokeAllForPrincipal revokes every non-revoked session of the principal and
	// returns how many rows changed.
	RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error)
	// ListByPrincipal returns the principal's active sessions, newest first.
	ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Session, error)
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

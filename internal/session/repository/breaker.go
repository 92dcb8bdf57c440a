package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
)

// BreakerSettings tunes the circuit breaker around a Store.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// MinRequests and FailureRatio decide when the circuit trips.
	MinRequests   uint32
	FailureRatio  float64
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerSettings returns the settings used by cmd/server.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:         "session-store",
		MaxRequests:  5,
		Interval:     10 * time.Second,
		Timeout:      5 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// Breaker wraps a Store with a circuit breaker. When the circuit is open calls
// fail fast with ErrStoreUnavailable instead of waiting on a dead backend.
// Lookup misses and a false AtomicRotate are answers, not failures, and do not
// count against the circuit.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker configured by s.
func NewBreaker(next Store, s BreakerSettings) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: s.OnStateChange,
	})
	return &Breaker{next: next, cb: cb}
}

// State reports the current circuit state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		// ErrOpenState and ErrTooManyRequests are reported the same way as backend errors.
		return zero, unavailable(err)
	}
	return v.(T), nil
}

func (b *Breaker) Create(ctx context.Context, s *domain.Session) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.next.Create(ctx, s) })
	return err
}

func (b *Breaker) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return execute(b, func() (*domain.Session, error) { return b.next.GetByID(ctx, id) })
}

func (b *Breaker) FindByHash(ctx context.Context, refreshTokenHash string) (*domain.Session, error) {
	return execute(b, func() (*domain.Session, error) { return b.next.FindByHash(ctx, refreshTokenHash) })
}

func (b *Breaker) AtomicRotate(ctx context.Context, oldHash string, next *domain.Session) (bool, error) {
	return execute(b, func() (bool, error) { return b.next.AtomicRotate(ctx, oldHash, next) })
}

func (b *Breaker) Revoke(ctx context.Context, id string) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.next.Revoke(ctx, id) })
	return err
}

func (b *Breaker) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	return execute(b, func() (int, error) { return b.next.RevokeAllForPrincipal(ctx, principalID) })
}

func (b *Breaker) ListByPrincipal(ctx context.Context, principalID string) ([]*domain.Session, error) {
	return execute(b, func() ([]*domain.Session, error) { return b.next.ListByPrincipal(ctx, principalID) })
}

// Ping bypasses the circuit so health checks see the backend directly.
func (b *Breaker) Ping(ctx context.Context) error {
	if p, ok := b.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

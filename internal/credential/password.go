package credential

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
)

// PrincipalLookup is the minimal principal repository needed by PasswordVerifier.
type PrincipalLookup interface {
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
}

// PasswordOptions bound online guessing per identifier.
type PasswordOptions struct {
	// MaxFailures consecutive wrong passwords lock the identifier for Lockout.
	// A failure older than Lockout no longer counts. Zero disables lockout.
	MaxFailures int
	Lockout     time.Duration
	// RatePerMinute caps attempts per identifier. Zero disables rate limiting.
	RatePerMinute int
	Now           func() time.Time
}

// sweepEvery is how often, by the verifier's clock, idle identifiers are forgotten.
const sweepEvery = time.Minute

type attempts struct {
	limiter     *rate.Limiter
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// PasswordVerifier checks email/password credentials against bcrypt hashes.
type PasswordVerifier struct {
	principals PrincipalLookup
	hasher     *security.Hasher
	opts       PasswordOptions

	mu        sync.Mutex
	state     map[string]*attempts
	nextSweep time.Time
}

// NewPasswordVerifier returns a PasswordVerifier. A nil opts.Now uses time.Now.
func NewPasswordVerifier(principals PrincipalLookup, hasher *security.Hasher, opts PasswordOptions) *PasswordVerifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PasswordVerifier{principals: principals, hasher: hasher, opts: opts, state: make(map[string]*attempts)}
}

// Verify returns the principal ID for a matching email/password.
func (v *PasswordVerifier) Verify(ctx context.Context, c Credential) (string, error) {
	email := domain.NormalizeEmail(c.Identifier)
	if email == "" || c.Secret == "" {
		return "", ErrInvalidCredential
	}
	now := v.opts.Now()
	if err := v.admit(email, now); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := v.principals.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if p == nil || p.Status != domain.PrincipalStatusActive || p.CredentialHash == "" {
		v.hasher.CompareDummy([]byte(c.Secret))
		v.fail(email, now)
		return "", ErrInvalidCredential
	}
	if err := v.hasher.Compare(p.CredentialHash, []byte(c.Secret)); err != nil {
		v.fail(email, now)
		return "", ErrInvalidCredential
	}
	v.succeed(email, now)
	return p.ID, nil
}

func (v *PasswordVerifier) admit(email string, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sweepLocked(now)
	a, ok := v.state[email]
	if !ok {
		if v.opts.RatePerMinute <= 0 {
			return nil
		}
		a = v.entryLocked(email)
	}
	if now.Before(a.lockedUntil) {
		return ErrAccountLocked
	}
	if a.limiter != nil && !a.limiter.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

func (v *PasswordVerifier) entryLocked(email string) *attempts {
	a, ok := v.state[email]
	if !ok {
		a = &attempts{}
		if v.opts.RatePerMinute > 0 {
			a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(v.opts.RatePerMinute)), v.opts.RatePerMinute)
		}
		v.state[email] = a
	}
	return a
}

// idleLocked reports whether a holds nothing that affects the next attempt:
// no lock, no counted failure and a full rate bucket.
func (v *PasswordVerifier) idleLocked(a *attempts, now time.Time) bool {
	if now.Before(a.lockedUntil) {
		return false
	}
	if a.failures > 0 && now.Sub(a.lastFailure) < v.opts.Lockout {
		return false
	}
	return a.limiter == nil || a.limiter.TokensAt(now) >= float64(a.limiter.Burst())
}

func (v *PasswordVerifier) sweepLocked(now time.Time) {
	if now.Before(v.nextSweep) {
		return
	}
	v.nextSweep = now.Add(sweepEvery)
	for email, a := range v.state {
		if v.idleLocked(a, now) {
			delete(v.state, email)
		}
	}
}

func (v *PasswordVerifier) fail(email string, now time.Time) {
	if v.opts.MaxFailures <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	a := v.entryLocked(email)
	if a.failures > 0 && now.Sub(a.lastFailure) >= v.opts.Lockout {
		a.failures = 0
	}
	a.failures++
	a.lastFailure = now
	if a.failures >= v.opts.MaxFailures {
		a.failures = 0
		a.lockedUntil = now.Add(v.opts.Lockout)
	}
}

func (v *PasswordVerifier) succeed(email string, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.state[email]
	if !ok {
		return
	}
	a.failures = 0
	if v.idleLocked(a, now) {
		delete(v.state, email)
	}
}

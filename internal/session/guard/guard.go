// Package guard holds one client's session and decides, before each protected
// action, whether its access token is still good, refreshing it when it is not.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/observability/metrics"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/issuer"
)

var (
	// ErrTemporarilyUnavailable wraps verifier and rotation failures that may succeed on retry.
	ErrTemporarilyUnavailable = errors.New("authentication temporarily unavailable")
	// ErrSessionEnded is the only detail a client gets when its session is gone.
	ErrSessionEnded = errors.New("session ended")
	// ErrLoggedOut is returned to callers whose wait was cut short by Logout.
	ErrLoggedOut = errors.New("logged out")
	// ErrInvalidTransition is returned by SubmitCredential unless the guard is Unauthenticated.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// Observer is called on every state change while the guard's lock is held.
// It must not call back into the guard.
type Observer func(from, to Kind)

// Guard is the session state machine of one client. It is safe for concurrent use.
type Guard struct {
	backend        Backend
	now            func() time.Time
	verifyTimeout  time.Duration
	refreshTimeout time.Duration
	leeway         time.Duration
	log            logrus.FieldLogger
	observer       Observer
	metrics        *metrics.Metrics

	flights singleflight.Group

	mu       sync.Mutex
	kind     Kind
	pair     *domain.TokenPair
	gen      uint64    // bumped by login and logout; stale work compares against it
	rotation *rotation // outstanding backend Refresh, if any
}

// Option configures a Guard.
type Option func(*Guard)

func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

// WithVerifyTimeout bounds SubmitCredential's backend call.
func WithVerifyTimeout(d time.Duration) Option { return func(g *Guard) { g.verifyTimeout = d } }

// WithRefreshTimeout bounds a single rotation.
func WithRefreshTimeout(d time.Duration) Option { return func(g *Guard) { g.refreshTimeout = d } }

// WithLeeway treats access tokens as expired this long before their expiry.
func WithLeeway(d time.Duration) Option { return func(g *Guard) { g.leeway = d } }

func WithLogger(l logrus.FieldLogger) Option { return func(g *Guard) { g.log = l } }

func WithObserver(o Observer) Option { return func(g *Guard) { g.observer = o } }

func WithMetrics(m *metrics.Metrics) Option { return func(g *Guard) { g.metrics = m } }

// New returns an Unauthenticated guard.
func New(backend Backend, opts ...Option) *Guard {
	g := &Guard{
		backend:        backend,
		now:            time.Now,
		verifyTimeout:  5 * time.Second,
		refreshTimeout: 5 * time.Second,
		log:            logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CurrentState returns a snapshot of the guard.
func (g *Guard) CurrentState() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := State{Kind: g.kind}
	if g.pair != nil {
		st.SessionID = g.pair.SessionID
		st.PrincipalID = g.pair.PrincipalID
		st.AccessToken = g.pair.AccessToken
		st.AccessTokenExpiry = g.pair.AccessTokenExpiry
	}
	return st
}

// SubmitCredential logs in. On failure the guard returns to Unauthenticated and
// the credential error (ErrInvalidCredential, ErrRateLimited, ErrAccountLocked)
// is returned unchanged; timeouts and backend outages wrap ErrTemporarilyUnavailable.
func (g *Guard) SubmitCredential(ctx context.Context, c credential.Credential) error {
	g.mu.Lock()
	if g.kind != Unauthenticated {
		from := g.kind
		g.mu.Unlock()
		return fmt.Errorf("%w: submit credential while %s", ErrInvalidTransition, from)
	}
	g.gen++
	gen := g.gen
	g.setStateLocked(Authenticating)
	g.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, g.verifyTimeout)
	defer cancel()
	pair, err := g.login(vctx, c)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gen != gen {
		if err == nil {
			go g.discard(pair)
		}
		return ErrLoggedOut
	}
	if err != nil {
		g.setStateLocked(Unauthenticated)
		if isCredentialError(err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTemporarilyUnavailable, err)
	}
	g.pair = pair
	g.setStateLocked(Authenticated)
	g.log.WithFields(logrus.Fields{"session_id": pair.SessionID, "principal_id": pair.PrincipalID}).Info("guard: authenticated")
	return nil
}

// login calls the backend but stops waiting when ctx ends. A login that
// completes after the caller gave up is revoked.
func (g *Guard) login(ctx context.Context, c credential.Credential) (*domain.TokenPair, error) {
	type result struct {
		pair *domain.TokenPair
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		pair, err := g.backend.Login(ctx, c)
		ch <- result{pair, err}
	}()
	select {
	case r := <-ch:
		return r.pair, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				g.discard(r.pair)
			}
		}()
		return nil, ctx.Err()
	}
}

// EnsureFresh answers whether a protected action may proceed, rotating the
// access token first if it has expired. Concurrent callers share one rotation.
//
// It never answers Allow on error. A transient rotation failure leaves the
// session in place (the same refresh token is retried next time) and returns
// RedirectLogin with an error wrapping ErrTemporarilyUnavailable.
func (g *Guard) EnsureFresh(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	if g.kind != Authenticated && g.kind != Refreshing {
		g.mu.Unlock()
		return RedirectLogin, nil
	}
	pair, gen := g.pair, g.gen
	if g.kind == Authenticated && g.freshLocked(pair) {
		g.mu.Unlock()
		return Allow, nil
	}
	g.mu.Unlock()

	ch := g.flights.DoChan(pair.SessionID, func() (any, error) {
		return g.refresh(gen, pair)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return RedirectLogin, res.Err
		}
		return Allow, nil
	case <-ctx.Done():
		return RedirectLogin, ctx.Err()
	}
}

// rotation is one backend Refresh call. It settles once, when the backend
// returns, even if every waiter has already given up.
type rotation struct {
	from      *domain.TokenPair
	cancel    context.CancelFunc
	abandoned chan struct{} // closed by Logout
	done      chan struct{} // closed after next and err are set

	next      *domain.TokenPair
	err       error
	loggedOut bool
}

// result maps a settled rotation to what EnsureFresh returns. Callers hold g.mu.
func (r *rotation) result() (*domain.TokenPair, error) {
	switch {
	case r.loggedOut:
		return nil, ErrLoggedOut
	case r.err == nil:
		return r.next, nil
	case isTerminal(r.err):
		return nil, ErrSessionEnded
	default:
		return nil, fmt.Errorf("%w: %w", ErrTemporarilyUnavailable, r.err)
	}
}

// refresh waits at most refreshTimeout for the rotation of pair, starting one
// unless a previous call for the same refresh token is still outstanding.
// The backend call runs detached from any caller's context and is cancelled by Logout.
func (g *Guard) refresh(gen uint64, pair *domain.TokenPair) (*domain.TokenPair, error) {
	g.mu.Lock()
	if g.gen != gen {
		g.mu.Unlock()
		return nil, ErrLoggedOut
	}
	if g.pair != nil && g.pair.SessionID != pair.SessionID {
		// An earlier flight already rotated this session.
		cur := g.pair
		g.mu.Unlock()
		return cur, nil
	}
	rot := g.rotation
	if rot == nil || rot.from.SessionID != pair.SessionID {
		ctx, cancel := context.WithTimeout(context.Background(), g.refreshTimeout)
		rot = &rotation{from: pair, cancel: cancel, abandoned: make(chan struct{}), done: make(chan struct{})}
		g.rotation = rot
		go g.rotate(ctx, gen, rot)
	}
	g.setStateLocked(Refreshing)
	g.mu.Unlock()

	timer := time.NewTimer(g.refreshTimeout)
	defer timer.Stop()
	select {
	case <-rot.done:
	case <-rot.abandoned:
	case <-timer.C:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-rot.done:
		return rot.result()
	default:
	}
	if g.gen != gen {
		return nil, ErrLoggedOut
	}
	// The backend has not answered. The rotation stays registered so the next
	// attempt joins it instead of presenting the same refresh token twice.
	g.log.WithFields(logrus.Fields{"session_id": pair.SessionID, "principal_id": pair.PrincipalID}).
		Warn("guard: refresh timed out; keeping session for retry")
	g.setStateLocked(Authenticated)
	g.metrics.GuardRefresh("timeout")
	return nil, fmt.Errorf("%w: refresh timed out after %s", ErrTemporarilyUnavailable, g.refreshTimeout)
}

// rotate calls the backend and applies its answer to the guard.
func (g *Guard) rotate(ctx context.Context, gen uint64, rot *rotation) {
	next, err := g.backend.Refresh(ctx, rot.from.RefreshToken)
	rot.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()
	rot.next, rot.err = next, err
	defer close(rot.done)
	if g.rotation == rot {
		g.rotation = nil
	}
	log := g.log.WithFields(logrus.Fields{"session_id": rot.from.SessionID, "principal_id": rot.from.PrincipalID})
	if g.gen != gen {
		rot.loggedOut = true
		if err == nil {
			go g.discard(next)
		}
		g.metrics.GuardRefresh("logged_out")
		return
	}
	switch {
	case err == nil:
		g.pair = next
		if g.kind != Authenticated {
			g.setStateLocked(Authenticated)
		}
		g.metrics.GuardRefresh("success")
	case isTerminal(err):
		if errors.Is(err, issuer.ErrRotationReused) {
			log.Warn("guard: refresh token reuse detected; session family revoked")
		} else {
			log.WithError(err).Info("guard: session ended")
		}
		g.pair = nil
		g.gen++
		g.setStateLocked(Expired)
		g.setStateLocked(Unauthenticated)
		g.metrics.GuardRefresh("ended")
	default:
		log.WithError(err).Warn("guard: refresh failed; keeping session for retry")
		if g.kind != Authenticated {
			g.setStateLocked(Authenticated)
		}
		g.metrics.GuardRefresh("retryable")
	}
}

// Logout revokes the session and returns the guard to Unauthenticated. Any
// in-flight login or refresh is abandoned and its waiters get RedirectLogin.
// The local state is cleared even when the backend revocation fails.
//
// A rotation already sent to the backend is allowed to finish before the
// session is revoked: revoking underneath it would be reported as refresh
// token reuse and end the principal's other sessions. Its successor, if any,
// is revoked too. If ctx ends first the revocation happens once the rotation
// settles and ctx's error is returned.
func (g *Guard) Logout(ctx context.Context) error {
	g.mu.Lock()
	pair := g.pair
	g.gen++
	rot := g.rotation
	g.rotation = nil
	if rot != nil {
		rot.cancel()
		close(rot.abandoned)
	}
	g.pair = nil
	if g.kind != Unauthenticated {
		g.setStateLocked(Unauthenticated)
	}
	g.mu.Unlock()

	if pair == nil {
		return nil
	}
	if rot != nil {
		select {
		case <-rot.done:
		case <-ctx.Done():
			go func() {
				<-rot.done
				g.discard(pair)
			}()
			return ctx.Err()
		}
	}
	if err := g.backend.Logout(ctx, pair); err != nil {
		g.log.WithError(err).WithField("session_id", pair.SessionID).Warn("guard: revoke on logout failed")
		return err
	}
	return nil
}

// discard revokes a pair the guard will never use.
func (g *Guard) discard(pair *domain.TokenPair) {
	ctx, cancel := context.WithTimeout(context.Background(), g.refreshTimeout)
	defer cancel()
	if err := g.backend.Logout(ctx, pair); err != nil {
		g.log.WithError(err).WithField("session_id", pair.SessionID).Warn("guard: discard abandoned session")
	}
}

func (g *Guard) freshLocked(pair *domain.TokenPair) bool {
	return g.now().Add(g.leeway).Before(pair.AccessTokenExpiry)
}

func (g *Guard) setStateLocked(to Kind) {
	from := g.kind
	g.kind = to
	g.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("guard: transition")
	if g.observer != nil {
		g.observer(from, to)
	}
}

func isTerminal(err error) bool {
	return issuer.IsTerminal(err) || errors.Is(err, ErrSessionEnded)
}

func isCredentialError(err error) bool {
	return errors.Is(err, credential.ErrInvalidCredential) ||
		errors.Is(err, credential.ErrRateLimited) ||
		errors.Is(err, credential.ErrAccountLocked)
}

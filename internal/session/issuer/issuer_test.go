package issuer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	auditdomain "github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) LogEvent(ctx context.Context, principalID, sessionID, action, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *recordingAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

type fixture struct {
	issuer *Issuer
	store  *repository.MemoryStore
	tokens *security.TokenProvider
	clock  *fakeClock
	audit  *recordingAudit
}

func newFixture(t *testing.T, store repository.Store) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	tokens.WithClock(clock.Now)
	mem := repository.NewMemoryStore().WithClock(clock.Now)
	if store == nil {
		store = mem
	}
	rec := &recordingAudit{}
	iss := New(store, tokens, 7*24*time.Hour,
		WithClock(clock.Now), WithAuditLogger(rec), WithRetry(3, time.Millisecond))
	return &fixture{issuer: iss, store: mem, tokens: tokens, clock: clock, audit: rec}
}

func TestIssue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, s, err := f.issuer.Issue(ctx, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if s.Status != domain.StatusActive || s.FamilyID != s.ID || s.ParentID != "" {
		t.Errorf("session = %+v", s)
	}
	if s.RefreshTokenHash != security.HashRefreshToken(pair.RefreshToken) {
		t.Error("stored hash does not match refresh token")
	}
	if !pair.AccessTokenExpiry.Equal(f.clock.Now().Add(15 * time.Minute)) {
		t.Errorf("access expiry = %v", pair.AccessTokenExpiry)
	}
	if !pair.RefreshTokenExpiry.Equal(f.clock.Now().Add(7 * 24 * time.Hour)) {
		t.Errorf("refresh expiry = %v", pair.RefreshTokenExpiry)
	}
	claims, err := f.tokens.ValidateAccess(pair.AccessToken)
	if err != nil || claims.SessionID != s.ID || claims.PrincipalID != "alice" {
		t.Fatalf("ValidateAccess = %+v, %v", claims, err)
	}
	stored, _ := f.store.GetByID(ctx, s.ID)
	if stored == nil || stored.Status != domain.StatusActive {
		t.Errorf("stored = %+v", stored)
	}
	if !f.audit.has(auditdomain.ActionLoginSuccess) {
		t.Error("login_success not audited")
	}
	if _, _, err := f.issuer.Issue(ctx, ""); err == nil {
		t.Error("empty principal should be rejected")
	}
}

func TestRotate_Success(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, s1, err := f.issuer.Issue(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(16 * time.Minute)
	second, err := f.issuer.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if second.SessionID == first.SessionID || second.RefreshToken == first.RefreshToken || second.AccessToken == first.AccessToken {
		t.Error("rotation must produce a new session id and tokens")
	}
	if !second.AccessTokenExpiry.After(first.AccessTokenExpiry) {
		t.Error("new access token should expire later")
	}
	old, _ := f.store.GetByID(ctx, s1.ID)
	if old.Status != domain.StatusRotated || old.ReplacedBy != second.SessionID {
		t.Errorf("old row = %+v", old)
	}
	next, _ := f.store.GetByID(ctx, second.SessionID)
	if next.FamilyID != s1.ID || next.ParentID != s1.ID || next.Status != domain.StatusActive {
		t.Errorf("successor = %+v", next)
	}
	if !f.audit.has(auditdomain.ActionSessionRotated) {
		t.Error("session_rotated not audited")
	}
}

func TestRotate_ReplayRevokesEverySession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first, _, _ := f.issuer.Issue(ctx, "alice")
	other, _, _ := f.issuer.Issue(ctx, "alice")
	bob, _, _ := f.issuer.Issue(ctx, "bob")
	second, err := f.issuer.Rotate(ctx, first.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.issuer.Rotate(ctx, first.RefreshToken); !errors.Is(err, ErrRotationReused) {
		t.Fatalf("replay err = %v, want ErrRotationReused", err)
	}
	for _, id := range []string{first.SessionID, second.SessionID, other.SessionID} {
		s, _ := f.store.GetByID(ctx, id)
		if s.Status != domain.StatusRevoked {
			t.Errorf("session %s status = %s, want revoked", id, s.Status)
		}
	}
	if s, _ := f.store.GetByID(ctx, bob.SessionID); s.Status != domain.StatusActive {
		t.Errorf("other principal affected: %s", s.Status)
	}
	if _, err := f.issuer.Rotate(ctx, second.RefreshToken); !errors.Is(err, ErrRotationReused) {
		t.Errorf("successor after revoke-all err = %v, want ErrRotationReused", err)
	}
	if !f.audit.has(auditdomain.ActionReuseDetected) {
		t.Error("reuse not audited")
	}
}

func TestRotate_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	for _, tok := range []string{"", "never-issued"} {
		if _, err := f.issuer.Rotate(context.Background(), tok); !errors.Is(err, ErrRotationNotFound) {
			t.Errorf("Rotate(%q) err = %v, want ErrRotationNotFound", tok, err)
		}
	}
}

func TestRotate_ExpiredDoesNotWrite(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, s, _ := f.issuer.Issue(ctx, "alice")
	f.clock.Advance(7 * 24 * time.Hour)
	if _, err := f.issuer.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrRotationExpired) {
		t.Fatalf("err = %v, want ErrRotationExpired", err)
	}
	row, _ := f.store.GetByID(ctx, s.ID)
	if row.Status != domain.StatusActive || row.LastRefreshedAt != nil || row.RevokedAt != nil {
		t.Errorf("expired row was written: %+v", row)
	}
}

func TestRevoke_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, s, _ := f.issuer.Issue(ctx, "alice")
	if err := f.issuer.Revoke(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	first, _ := f.store.GetByID(ctx, s.ID)
	f.clock.Advance(time.Minute)
	if err := f.issuer.Revoke(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	second, _ := f.store.GetByID(ctx, s.ID)
	if second.Status != domain.StatusRevoked || !second.RevokedAt.Equal(*first.RevokedAt) {
		t.Errorf("second revoke changed the row: %+v -> %+v", first, second)
	}
	if err := f.issuer.Revoke(ctx, "unknown"); err != nil {
		t.Errorf("Revoke(unknown) = %v", err)
	}
	if _, err := f.issuer.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrRotationReused) {
		t.Errorf("rotate after logout err = %v, want ErrRotationReused", err)
	}
}

func TestRevokeRefreshToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, s, _ := f.issuer.Issue(ctx, "alice")
	if err := f.issuer.RevokeRefreshToken(ctx, "garbage"); err != nil {
		t.Errorf("unknown token = %v", err)
	}
	if err := f.issuer.RevokeRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if row, _ := f.store.GetByID(ctx, s.ID); row.Status != domain.StatusRevoked {
		t.Errorf("status = %s", row.Status)
	}
}

func TestRevokeAllForPrincipalAndListActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.issuer.Issue(ctx, "alice")
		f.clock.Advance(time.Second)
	}
	list, err := f.issuer.ListActive(ctx, "alice")
	if err != nil || len(list) != 3 {
		t.Fatalf("ListActive = %d, %v", len(list), err)
	}
	n, err := f.issuer.RevokeAllForPrincipal(ctx, "alice")
	if err != nil || n != 3 {
		t.Fatalf("RevokeAllForPrincipal = %d, %v", n, err)
	}
	if list, _ := f.issuer.ListActive(ctx, "alice"); len(list) != 0 {
		t.Errorf("active after revoke all = %d", len(list))
	}
	if !f.audit.has(auditdomain.ActionRevokeAll) {
		t.Error("revoke_all not audited")
	}
}

func TestRotate_ConcurrentSameTokenSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	pair, _, _ := f.issuer.Issue(ctx, "alice")
	var ok, reused atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.issuer.Rotate(ctx, pair.RefreshToken)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrRotationReused):
				reused.Add(1)
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || reused.Load() != 7 {
		t.Errorf("winners = %d, reused = %d; want 1, 7", ok.Load(), reused.Load())
	}
}

// flakyStore fails the first n calls of FindByHash and every AtomicRotate when asked to.
type flakyStore struct {
	*repository.MemoryStore
	findFailures int
	findCalls    atomic.Int32
	failRotate   bool
	rotateCalls  atomic.Int32
}

func (s *flakyStore) FindByHash(ctx context.Context, h string) (*domain.Session, error) {
	if int(s.findCalls.Add(1)) <= s.findFailures {
		return nil, repository.ErrStoreUnavailable
	}
	return s.MemoryStore.FindByHash(ctx, h)
}

func (s *flakyStore) AtomicRotate(ctx context.Context, oldHash string, next *domain.Session) (bool, error) {
	s.rotateCalls.Add(1)
	if s.failRotate {
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.AtomicRotate(ctx, oldHash, next)
}

func TestRotate_RetriesReads(t *testing.T) {
	flaky := &flakyStore{MemoryStore: repository.NewMemoryStore(), findFailures: 2}
	f := newFixture(t, flaky)
	pair, _, err := f.issuer.Issue(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.issuer.Rotate(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Rotate after transient failures: %v", err)
	}
	if got := flaky.findCalls.Load(); got != 3 {
		t.Errorf("FindByHash calls = %d, want 3", got)
	}
}

func TestRotate_StoreUnavailableIsRetryable(t *testing.T) {
	flaky := &flakyStore{MemoryStore: repository.NewMemoryStore(), findFailures: 100}
	f := newFixture(t, flaky)
	pair, _, _ := f.issuer.Issue(context.Background(), "alice")
	_, err := f.issuer.Rotate(context.Background(), pair.RefreshToken)
	if !IsRetryable(err) || IsTerminal(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
	if got := flaky.findCalls.Load(); got != 3 {
		t.Errorf("FindByHash calls = %d, want 3 (retry budget)", got)
	}
}

func TestRotate_AtomicRotateIsNotRetried(t *testing.T) {
	flaky := &flakyStore{MemoryStore: repository.NewMemoryStore(), failRotate: true}
	f := newFixture(t, flaky)
	pair, s, _ := f.issuer.Issue(context.Background(), "alice")
	_, err := f.issuer.Rotate(context.Background(), pair.RefreshToken)
	if !errors.Is(err, ErrStoreUnavailable) || !IsRetryable(err) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if got := flaky.rotateCalls.Load(); got != 1 {
		t.Errorf("AtomicRotate calls = %d, want 1", got)
	}
	if row, _ := flaky.GetByID(context.Background(), s.ID); row.Status != domain.StatusActive {
		t.Errorf("token should remain usable after a failed write, status = %s", row.Status)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		err                 error
		retryable, terminal bool
	}{
		{ErrRotationNotFound, false, true},
		{ErrRotationExpired, false, true},
		{ErrRotationReused, false, true},
		{ErrStoreUnavailable, true, false},
		{context.DeadlineExceeded, true, false},
		{context.Canceled, false, false},
		{nil, false, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Errorf("IsRetryable(%v) = %v", tc.err, got)
		}
		if got := IsTerminal(tc.err); got != tc.terminal {
			t.Errorf("IsTerminal(%v) = %v", tc.err, got)
		}
	}
}

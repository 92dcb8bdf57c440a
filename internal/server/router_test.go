package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	healthhandler "github.com/Jaldeepsinh-Gohil/MeetMate/internal/health/handler"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/observability/metrics"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/policy/engine"
	principalrepo "github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/domain"
	sessionhandler "github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/handler"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/issuer"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/repository"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	policy, err := engine.NewOPAEvaluator(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	store := repository.NewMemoryStore()
	principals := principalrepo.NewMemoryRepository()
	hasher := security.NewHasher(4)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")
	checker := healthhandler.NewChecker(map[string]healthhandler.Check{
		"policy": healthhandler.PolicyCheck(policy),
	})
	return NewRouter(Deps{
		Auth: &sessionhandler.Handler{
			Registrar:  credential.NewRegistrar(principals, hasher),
			Verifier:   credential.NewPasswordVerifier(principals, hasher, credential.PasswordOptions{}),
			Issuer:     issuer.New(store, tokens, 24*time.Hour, issuer.WithRetry(1, time.Millisecond)),
			Principals: principals,
			Metrics:    m,
		},
		Health:             healthhandler.NewHTTP(checker, map[string]string{"service": "test"}, nil),
		Tokens:             tokens,
		Policy:             policy,
		SessionValidator:   SessionLive(store),
		Metrics:            m,
		Gatherer:           reg,
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitPerMinute: 1000,
	})
}

func call(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicEndpoints(t *testing.T) {
	h := newTestRouter(t)

	rec := call(t, h, http.MethodGet, "/actuator/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id not propagated")
	}

	rec = call(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Error("metrics output missing http_requests_total")
	}

	rec = call(t, h, http.MethodGet, "/api/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me without token: status = %d, want 401", rec.Code)
	}
}

func TestRouter_RevokedSessionRejectsAccessToken(t *testing.T) {
	h := newTestRouter(t)

	rec := call(t, h, http.MethodPost, "/api/auth/register", "", sessionhandler.RegisterRequest{Email: "alice@example.com", Password: "correct-pw"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, body = %s", rec.Code, rec.Body)
	}
	rec = call(t, h, http.MethodPost, "/api/auth/login", "", sessionhandler.LoginRequest{Email: "alice@example.com", Password: "correct-pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body = %s", rec.Code, rec.Body)
	}
	var pair domain.TokenPair
	if err := json.NewDecoder(rec.Body).Decode(&pair); err != nil {
		t.Fatal(err)
	}

	if rec := call(t, h, http.MethodGet, "/api/me", pair.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec := call(t, h, http.MethodPost, "/api/auth/logout", "", sessionhandler.RefreshRequest{RefreshToken: pair.RefreshToken}); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec := call(t, h, http.MethodGet, "/api/me", pair.AccessToken, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout: status = %d, want 401", rec.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestSessionLive(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now()
	s := &domain.Session{
		ID: "s1", PrincipalID: "p1", FamilyID: "s1", RefreshTokenHash: "h1",
		Status: domain.StatusActive, CreatedAt: now, RefreshTokenExpiry: now.Add(time.Hour),
	}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	live := SessionLive(store)

	if ok, err := live(context.Background(), "s1"); err != nil || !ok {
		t.Errorf("active: ok=%v err=%v", ok, err)
	}
	if ok, err := live(context.Background(), "missing"); err != nil || ok {
		t.Errorf("missing: ok=%v err=%v", ok, err)
	}
	if err := store.Revoke(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := live(context.Background(), "s1"); ok {
		t.Error("revoked session reported live")
	}
}

func TestSessionLive_RotatedFollowsSuccessor(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Now()
	if err := store.Create(ctx, &domain.Session{
		ID: "s1", PrincipalID: "p1", FamilyID: "s1", RefreshTokenHash: "h1",
		Status: domain.StatusActive, CreatedAt: now, RefreshTokenExpiry: now.Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	next := &domain.Session{
		ID: "s2", PrincipalID: "p1", FamilyID: "s1", ParentID: "s1", RefreshTokenHash: "h2",
		Status: domain.StatusActive, CreatedAt: now, RefreshTokenExpiry: now.Add(time.Hour),
	}
	if ok, err := store.AtomicRotate(ctx, "h1", next); err != nil || !ok {
		t.Fatalf("AtomicRotate = %v, %v", ok, err)
	}
	live := SessionLive(store)

	if ok, err := live(ctx, "s1"); err != nil || !ok {
		t.Errorf("rotated with active successor: ok=%v err=%v", ok, err)
	}
	if err := store.Revoke(ctx, "s2"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := live(ctx, "s1"); ok {
		t.Error("rotated session live after its successor was revoked")
	}
}

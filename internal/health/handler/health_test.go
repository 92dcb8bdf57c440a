package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestChecker_Run(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		wantUp bool
	}{
		{"no checks", nil, true},
		{"nil check skipped", map[string]Check{"db": nil}, true},
		{"pinger success", map[string]Check{"db": PingCheck(&mockPinger{})}, true},
		{"pinger failure", map[string]Check{"db": PingCheck(&mockPinger{pingErr: errors.New("connection refused")})}, false},
		{"policy success", map[string]Check{"policy": PolicyCheck(&mockPolicyChecker{})}, true},
		{"policy fails", map[string]Check{
			"db":     PingCheck(&mockPinger{}),
			"policy": PolicyCheck(&mockPolicyChecker{healthErr: errors.New("rego compile failed")}),
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewChecker(tt.checks).Run(context.Background())
			if st.Up != tt.wantUp {
				t.Errorf("Up = %v, want %v (components %v)", st.Up, tt.wantUp, st.Components)
			}
		})
	}
}

func TestHTTP_Health(t *testing.T) {
	checker := NewChecker(map[string]Check{
		"db":     PingCheck(&mockPinger{}),
		"policy": PolicyCheck(&mockPolicyChecker{healthErr: errors.New("policy error")}),
	})
	r := chi.NewRouter()
	NewHTTP(checker, map[string]string{"version": "test"}, nil).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/actuator/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "DOWN" || body.Components["db"].Status != "UP" || body.Components["policy"].Status != "DOWN" {
		t.Errorf("body = %+v", body)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/actuator/info", nil))
	if rec.Code != http.StatusOK || !json.Valid(rec.Body.Bytes()) {
		t.Errorf("info: status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestGRPC_Update(t *testing.T) {
	pinger := &mockPinger{}
	g := NewGRPC(NewChecker(map[string]Check{"db": PingCheck(pinger)}), nil)
	ctx := context.Background()

	resp, err := g.Server.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before update: %v, %v", resp.GetStatus(), err)
	}
	if st := g.Update(ctx); st != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("Update = %v, want SERVING", st)
	}
	resp, _ = g.Server.Check(ctx, &healthpb.HealthCheckRequest{})
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v", resp.GetStatus())
	}

	pinger.pingErr = errors.New("down")
	if st := g.Update(ctx); st != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Update = %v, want NOT_SERVING", st)
	}
}

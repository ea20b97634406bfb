package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/meetbot/platform/internal/auth"
)

func withPrincipal(r *http.Request, tenantID uuid.UUID) *http.Request {
	principal := &auth.TenantPrincipal{TenantID: tenantID, TokenID: uuid.New()}
	return r.WithContext(context.WithValue(r.Context(), auth.PrincipalContextKey, principal))
}

func TestTenantRateLimiter_AllowsThenRejectsBurst(t *testing.T) {
	rl := NewTenantRateLimiter(1, 1, 10)
	tenantID := uuid.New()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	handler := rl.Middleware("test_route")(next)

	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/bots", nil), tenantID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	req2 := withPrincipal(httptest.NewRequest(http.MethodPost, "/bots", nil), tenantID)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", rec2.Code)
	}

	if calls != 1 {
		t.Errorf("expected the handler to run exactly once, got %d", calls)
	}
}

func TestTenantRateLimiter_PassesThroughUnauthenticated(t *testing.T) {
	rl := NewTenantRateLimiter(1, 1, 10)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	handler := rl.Middleware("test_route")(next)

	req := httptest.NewRequest(http.MethodPost, "/bots", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected request with no resolved principal to pass through to the next handler")
	}
}

func TestTenantRateLimiter_EvictsLeastRecentlyUsed(t *testing.T) {
	rl := NewTenantRateLimiter(1, 1, 2)

	a, b, c := uuid.New().String(), uuid.New().String(), uuid.New().String()
	rl.get(a)
	rl.get(b)
	rl.get(c) // evicts a, since it is least recently touched

	if _, ok := rl.limiters[a]; ok {
		t.Error("expected tenant a to be evicted")
	}
	if _, ok := rl.limiters[b]; !ok {
		t.Error("expected tenant b to remain")
	}
	if _, ok := rl.limiters[c]; !ok {
		t.Error("expected tenant c to remain")
	}
}

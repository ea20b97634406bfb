package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/meetbot/platform/internal/apperr"
)

// ContextKey is the key type for context values set by this package.
type ContextKey string

// PrincipalContextKey is the context key under which the resolved
// TenantPrincipal is stored for the lifetime of a request.
const PrincipalContextKey ContextKey = "principal"

// apiKeyHeader is the single accepted credential header for this deployment.
// Per the bound design decision, X-API-Token is never accepted alongside it.
const apiKeyHeader = "X-API-Key"

// Middleware resolves the X-API-Key header into a TenantPrincipal before
// calling the wrapped handler, rejecting the request otherwise.
type Middleware struct {
	identity *Service
}

// NewMiddleware constructs an HTTP authentication middleware.
func NewMiddleware(identity *Service) *Middleware {
	return &Middleware{identity: identity}
}

// HTTPMiddleware enforces that every request carries a resolvable token.
func (m *Middleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(apiKeyHeader)
		principal, err := m.identity.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.Unauthenticated || kind == apperr.Credential {
		msg = "authentication failed"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": msg,
	})
}

// FromContext extracts the resolved TenantPrincipal set by HTTPMiddleware.
func FromContext(ctx context.Context) (*TenantPrincipal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*TenantPrincipal)
	return p, ok
}

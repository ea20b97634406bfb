package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/apperr"
)

const tokenPrefixLen = 8

// positiveCacheTTL bounds how long a successfully resolved token is trusted
// without hitting the store again. The adapter never caches negatively.
const positiveCacheTTL = 30 * time.Second

type cacheEntry struct {
	principal TenantPrincipal
	expiresAt time.Time
}

// Service resolves opaque bearer tokens to tenant principals, grounded on the
// prefix-lookup-then-constant-time-compare pattern used for API key validation.
type Service struct {
	db     *sqlx.DB
	logger *zap.Logger

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

// NewService creates an identity adapter backed by the relational store.
func NewService(db *sqlx.DB, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Resolve maps a presented token string to a TenantPrincipal. A missing
// token is classified Unauthenticated (401: no credential was presented at
// all); a malformed or unrecognized token is classified Credential (403: a
// credential was presented but is not valid).
func (s *Service) Resolve(ctx context.Context, token string) (*TenantPrincipal, error) {
	if token == "" {
		s.logger.Warn("credential rejected", zap.String("reason", "missing"))
		return nil, apperr.New(apperr.Unauthenticated, "missing credential")
	}
	if len(token) < tokenPrefixLen {
		s.logger.Warn("credential rejected", zap.String("reason", "malformed"))
		return nil, apperr.New(apperr.Credential, "invalid credential")
	}

	if p, ok := s.lookupCache(token); ok {
		return &p, nil
	}

	prefix := token[:tokenPrefixLen]
	hash := hashToken(token)

	var candidates []ApiToken
	query := `SELECT id, tenant_id, token_hash, token_prefix, created_at, revoked_at
		FROM api_tokens WHERE token_prefix = $1 AND revoked_at IS NULL`
	if err := s.db.SelectContext(ctx, &candidates, query, prefix); err != nil {
		return nil, apperr.Wrap(apperr.BackingStoreUnavailable, "token lookup failed", err)
	}

	for _, c := range candidates {
		if subtle.ConstantTimeCompare([]byte(c.TokenHash), []byte(hash)) == 1 {
			principal := TenantPrincipal{TenantID: c.TenantID, TokenID: c.ID}
			s.storeCache(token, principal)
			return &principal, nil
		}
	}

	s.logger.Warn("credential rejected", zap.String("reason", "unknown"))
	return nil, apperr.New(apperr.Credential, "invalid credential")
}

// TenantByID fetches a tenant row by id. Nothing in this module calls it;
// the Read API scopes its queries by the resolved principal's tenant id.
func (s *Service) TenantByID(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.GetContext(ctx, &t, `SELECT id, name, created_at FROM tenants WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.NotFound, "tenant not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.BackingStoreUnavailable, "tenant lookup failed", err)
	}
	return &t, nil
}

func (s *Service) lookupCache(token string) (TenantPrincipal, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	entry, ok := s.cache[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return TenantPrincipal{}, false
	}
	return entry.principal, true
}

func (s *Service) storeCache(token string, principal TenantPrincipal) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[token] = cacheEntry{principal: principal, expiresAt: time.Now().Add(positiveCacheTTL)}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

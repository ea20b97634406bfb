package auth

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an identity created by the out-of-scope admin flow. It is
// immutable for the lifetime of any meeting it owns.
type Tenant struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// ApiToken is an opaque high-entropy string bound to exactly one tenant.
// Only the hash and a short lookup prefix are persisted.
type ApiToken struct {
	ID         uuid.UUID  `db:"id"`
	TenantID   uuid.UUID  `db:"tenant_id"`
	TokenHash  string     `db:"token_hash"`
	TokenPrefix string    `db:"token_prefix"`
	CreatedAt  time.Time  `db:"created_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

// TenantPrincipal is what resolve(token) returns on success: enough to scope
// every subsequent operation to a single tenant.
type TenantPrincipal struct {
	TenantID uuid.UUID
	TokenID  uuid.UUID
}

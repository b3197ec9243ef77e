package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/pkg/tenant"
)

// Roles supported by the RBAC system. SuperAdmin is the platform operator
// role and is never tenant-scoped; the other three are seeded into
// every tenant's role catalog during provisioning.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleHR         = "hr"
	RoleEmployee   = "employee"
)

// ValidRoles lists all known roles in descending privilege order.
var ValidRoles = []string{RoleSuperAdmin, RoleAdmin, RoleHR, RoleEmployee}

// Method describes how the caller was authenticated.
const (
	MethodOIDC    = "oidc"
	MethodLocal   = "local"
	MethodAPIKey  = "apikey"
	MethodDev     = "dev"
	MethodSession = "session"
	// MethodImpersonation marks a session issued by the operator impersonation
	// flow (C7) — same session-JWT machinery, a distinct claim shape.
	MethodImpersonation = "impersonation"
)

// Identity represents the authenticated caller for the current request.
type Identity struct {
	Subject      string     // JWT subject or "apikey:<prefix>"
	Email        string     // User email (empty for API keys)
	Name         string     // User display name
	Role         string     // One of the Role* constants
	TenantID     tenant.ID  // Resolved tenant id; empty for a SuperAdmin operator call
	UserID       *uuid.UUID // Non-nil for session/OIDC-authenticated users
	APIKeyID     *uuid.UUID // Non-nil for API key authentication
	Method       string     // One of the Method* constants
	IsSuperAdmin bool
	// ImpersonatedBy is set on an impersonation session and records the
	// operator identity behind it, for audit purposes.
	ImpersonatedBy *uuid.UUID
}

type ctxKey string

const identityKey ctxKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context.
// Returns nil if no identity is set.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// IsValidRole reports whether role is a recognised RBAC role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HashAPIKey returns the SHA-256 hex digest of a raw API key.
func HashAPIKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// TenantClaimSource implements tenant.ClaimSource over the authenticated
// identity, so pkg/tenant's resolver can consult it without importing
// internal/auth.
type TenantClaimSource struct{}

func (TenantClaimSource) TenantClaim(r *http.Request) (id tenant.ID, isSuperAdmin bool, ok bool) {
	ident := FromContext(r.Context())
	if ident == nil {
		return "", false, false
	}
	if ident.IsSuperAdmin {
		return ident.TenantID, true, true
	}
	return ident.TenantID, false, ident.TenantID != ""
}

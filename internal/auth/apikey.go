package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// APIKeyAuthenticator validates API keys against the shared api_keys table.
// Row-level isolation means a single query resolves a key from any tenant;
// the tenant_id it returns is what scopes every subsequent request.
type APIKeyAuthenticator struct {
	DB db.DBTX
}

// APIKeyResult holds the resolved identity data from an API key lookup.
type APIKeyResult struct {
	APIKeyID  uuid.UUID
	TenantID  tenant.ID
	KeyPrefix string
	Role      string
	Scopes    []string
}

// Authenticate hashes the raw key, looks it up in api_keys, and validates
// expiration.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (*APIKeyResult, error) {
	if rawKey == "" {
		return nil, fmt.Errorf("empty API key")
	}

	hash := HashAPIKey(rawKey)

	var result APIKeyResult
	var tenantIDRaw int64
	var expiresAt *time.Time
	err := a.DB.QueryRow(ctx,
		`SELECT id, tenant_id, key_prefix, role, scopes, expires_at
		 FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
		hash,
	).Scan(&result.APIKeyID, &tenantIDRaw, &result.KeyPrefix, &result.Role, &result.Scopes, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("looking up API key: %w", err)
	}
	result.TenantID = tenant.IDFromInt64(tenantIDRaw)

	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired at %s", expiresAt)
	}

	go func() {
		_, _ = a.DB.Exec(context.Background(),
			`UPDATE api_keys SET last_used_at = now() WHERE id = $1`, result.APIKeyID)
	}()

	if !IsValidRole(result.Role) {
		result.Role = RoleEmployee
	}

	return &result, nil
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// PATPrefix identifies personal access tokens.
const PATPrefix = "hrctl_pat_"

// MethodPAT indicates authentication via personal access token.
const MethodPAT = "pat"

// PATAuthResult holds resolved identity data from a PAT lookup.
type PATAuthResult struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        string
	TenantID    tenant.ID
}

// PATAuthenticator validates personal access tokens. Row-level isolation
// means the prefix is unique across the whole table, so a lookup is a
// single query rather than a per-tenant-schema scan.
type PATAuthenticator struct {
	db db.DBTX
}

// NewPATAuthenticator creates a PAT authenticator.
func NewPATAuthenticator(dbtx db.DBTX) *PATAuthenticator {
	return &PATAuthenticator{db: dbtx}
}

// Authenticate validates a raw PAT string, checking hash and expiry, and
// returns the resolved identity.
func (a *PATAuthenticator) Authenticate(ctx context.Context, rawToken string) (*PATAuthResult, error) {
	if len(rawToken) < len(PATPrefix)+8 {
		return nil, fmt.Errorf("token too short")
	}

	prefix := rawToken[:len(PATPrefix)+8]
	expectedHash := hashPAT(rawToken)

	var tokenHash string
	var userID uuid.UUID
	var tenantIDRaw int64
	var expiresAt *time.Time
	err := a.db.QueryRow(ctx,
		`SELECT token_hash, user_id, tenant_id, expires_at FROM personal_access_tokens WHERE prefix = $1`,
		prefix,
	).Scan(&tokenHash, &userID, &tenantIDRaw, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("token not found")
	}

	if tokenHash != expectedHash {
		return nil, fmt.Errorf("invalid token")
	}

	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("token expired at %s", expiresAt)
	}

	var email, displayName, role string
	err = a.db.QueryRow(ctx,
		`SELECT email, name, role FROM users WHERE id = $1 AND is_active = true`,
		userID,
	).Scan(&email, &displayName, &role)
	if err != nil {
		return nil, fmt.Errorf("looking up user for PAT: %w", err)
	}

	go func() {
		_, _ = a.db.Exec(context.Background(),
			`UPDATE personal_access_tokens SET last_used_at = now() WHERE prefix = $1`, prefix)
	}()

	return &PATAuthResult{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		TenantID:    tenant.IDFromInt64(tenantIDRaw),
	}, nil
}

func hashPAT(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Middleware returns an HTTP middleware that authenticates the caller via
// personal access token, session JWT, OIDC JWT, API key, or dev header and
// stores the resulting Identity in the request context.
//
// Authentication precedence:
//  1. Authorization: Bearer <token>  →  PAT → session JWT (HMAC) → OIDC
//  2. X-API-Key: <raw-key>           →  API key hash lookup
//  3. X-Dev-Role / X-Dev-Tenant      →  Development-only fallback (no real auth)
//
// If none succeed, the request is rejected with 401.
func Middleware(sessionMgr *SessionManager, oidcAuth *OIDCAuthenticator, patAuth *PATAuthenticator, dbtx db.DBTX, devMode bool, logger *slog.Logger) func(http.Handler) http.Handler {
	apikeyAuth := &APIKeyAuthenticator{DB: dbtx}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") || strings.HasPrefix(authHeader, "bearer ") {
				rawToken := strings.TrimPrefix(authHeader, "Bearer ")
				rawToken = strings.TrimPrefix(rawToken, "bearer ")
				rawToken = strings.TrimSpace(rawToken)

				if strings.HasPrefix(rawToken, PATPrefix) && patAuth != nil {
					result, err := patAuth.Authenticate(r.Context(), rawToken)
					if err != nil {
						logger.Warn("PAT authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid personal access token")
						return
					}

					identity = &Identity{
						Subject:  result.DisplayName,
						Email:    result.Email,
						Role:     result.Role,
						TenantID: result.TenantID,
						UserID:   &result.UserID,
						Method:   MethodPAT,
					}
				}

				if identity == nil && sessionMgr != nil {
					claims, err := sessionMgr.ValidateToken(rawToken)
					if err == nil {
						var userID *uuid.UUID
						if u, err := uuid.Parse(claims.UserID); err == nil {
							userID = &u
						}
						identity = &Identity{
							Subject:      claims.Subject,
							Email:        claims.Email,
							Role:         claims.Role,
							TenantID:     tenant.ID(claims.TenantID),
							UserID:       userID,
							Method:       claims.Method,
							IsSuperAdmin: claims.IsSuperAdmin,
						}
						if claims.ImpersonatorID != "" {
							if impID, err := uuid.Parse(claims.ImpersonatorID); err == nil {
								identity.ImpersonatedBy = &impID
							}
						}

						logger.Debug("authenticated via session JWT",
							"sub", claims.Subject, "email", claims.Email, "tenant_id", claims.TenantID)
					}
				}

				if identity == nil {
					if oidcAuth == nil {
						logger.Warn("JWT presented but OIDC is not configured")
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}

					claims, err := oidcAuth.Authenticate(r.Context(), authHeader)
					if err != nil {
						logger.Warn("OIDC authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
						return
					}

					identity = &Identity{
						Subject:      claims.Subject,
						Email:        claims.Email,
						Role:         claims.Role,
						Method:       MethodOIDC,
						IsSuperAdmin: claims.Role == RoleSuperAdmin,
					}

					logger.Debug("authenticated via OIDC", "sub", claims.Subject, "email", claims.Email)
				}
			}

			if identity == nil {
				if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
					result, err := apikeyAuth.Authenticate(r.Context(), rawKey)
					if err != nil {
						logger.Warn("API key authentication failed", "error", err)
						respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
						return
					}

					identity = &Identity{
						Subject:  fmt.Sprintf("apikey:%s", result.KeyPrefix),
						Role:     result.Role,
						TenantID: result.TenantID,
						APIKeyID: &result.APIKeyID,
						Method:   MethodAPIKey,
					}

					logger.Debug("authenticated via API key", "key_prefix", result.KeyPrefix, "role", result.Role)
				}
			}

			if identity == nil && devMode {
				if role := r.Header.Get("X-Dev-Role"); role != "" {
					if !IsValidRole(role) {
						role = RoleAdmin
					}
					devID := uuid.Nil
					identity = &Identity{
						Subject:  "dev:anonymous",
						Email:    "dev@localhost",
						Role:     role,
						TenantID: tenant.ID(r.Header.Get("X-Dev-Tenant")),
						UserID:   &devID,
						Method:   MethodDev,
					}
					if role == RoleSuperAdmin {
						identity.IsSuperAdmin = true
					}
					logger.Debug("dev-mode authentication", "role", role, "tenant_id", identity.TenantID)
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}

package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/wisbric/hrctl/internal/apperr"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

var reservedSubdomains = map[string]bool{
	"www": true, "api": true, "app": true, "admin": true,
}

// ClaimSource supplies the tenant id carried on the authenticated principal,
// if any. internal/auth implements this over its session/API-key identity
// so pkg/tenant never needs to import internal/auth.
type ClaimSource interface {
	// TenantClaim returns the tenant id bound to the request's authenticated
	// principal and whether that principal is a SuperAdmin. ok is false when
	// there is no authenticated principal yet.
	TenantClaim(r *http.Request) (id ID, isSuperAdmin bool, ok bool)
}

// Lookup retrieves tenant metadata by id or by domain.
type Lookup interface {
	LookupByID(ctx context.Context, id ID) (*Info, error)
	LookupByDomain(ctx context.Context, domain string) (*Info, error)
}

// Resolve derives the tenant id for a request per the five-step priority
// chain (C1): claim, subdomain, X-Tenant-Id header, X-Tenant-Domain header,
// then the literal "default" scope. It returns TenantMismatch if the claim
// disagrees with a subdomain/header-derived id.
func Resolve(ctx context.Context, r *http.Request, claims ClaimSource, lookup Lookup) (ID, bool, error) {
	var claimID ID
	var isSuperAdmin bool
	var haveClaim bool

	if claims != nil {
		claimID, isSuperAdmin, haveClaim = claims.TenantClaim(r)
	}

	var headerDerived ID
	var haveHeaderDerived bool

	if host := hostname(r); host != "" && host != "localhost" {
		sub := subdomain(host)
		if sub != "" && subdomainPattern.MatchString(sub) && !reservedSubdomains[sub] {
			info, err := lookup.LookupByDomain(ctx, sub)
			if err == nil && info != nil {
				headerDerived, haveHeaderDerived = info.ID, true
			}
		}
	}

	if !haveHeaderDerived {
		if v := r.Header.Get("X-Tenant-Id"); v != "" {
			headerDerived, haveHeaderDerived = ID(v), true
		}
	}

	if !haveHeaderDerived {
		if v := r.Header.Get("X-Tenant-Domain"); v != "" {
			info, err := lookup.LookupByDomain(ctx, v)
			if err == nil && info != nil {
				headerDerived, haveHeaderDerived = info.ID, true
			}
		}
	}

	switch {
	case haveClaim && haveHeaderDerived:
		if claimID != headerDerived {
			return "", false, apperr.Auth("tenant_mismatch", "authenticated tenant does not match request tenant")
		}
		return claimID, isSuperAdmin, nil
	case haveClaim:
		return claimID, isSuperAdmin, nil
	case haveHeaderDerived:
		return headerDerived, false, nil
	default:
		return Default, false, nil
	}
}

func hostname(r *http.Request) string {
	host := r.Host
	for i, c := range host {
		if c == ':' {
			return host[:i]
		}
	}
	return host
}

func subdomain(host string) string {
	for i, c := range host {
		if c == '.' {
			return host[:i]
		}
	}
	return ""
}

// Middleware resolves the tenant for every request under its chain and
// publishes tenant.Info on the context. Tenant-scoped endpoints that fail to
// resolve a non-default tenant should reject with TenantRequired themselves;
// this middleware rejects only when Resolve returns an error (such as a
// claim/header mismatch) or the resolved tenant does not exist.
func Middleware(claims ClaimSource, lookup Lookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, isSuperAdmin, err := Resolve(r.Context(), r, claims, lookup)
			if err != nil {
				writeErr(w, logger, err)
				return
			}

			if id.IsDefault() {
				info := &Info{ID: Default, SuperAdminBypass: isSuperAdmin}
				next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), info)))
				return
			}

			info, err := lookup.LookupByID(r.Context(), id)
			if err != nil {
				logger.Warn("tenant not found", "tenant_id", id, "error", err)
				writeErr(w, logger, apperr.NotFound("tenant_not_found", "tenant not found"))
				return
			}
			info.SuperAdminBypass = isSuperAdmin

			logger.Debug("tenant resolved", "tenant_id", info.ID, "status", info.Status)

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), info)))
		})
	}
}

func writeErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		logger.Error("tenant resolution failed", "error", err)
		writeJSONErr(w, 500, "internal", "tenant resolution failed")
		return
	}
	writeJSONErr(w, ae.Status(), ae.Code, ae.Message)
}

func writeJSONErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q}`, code, message)
}

// RequireTenant rejects requests that resolved to the Default scope. Mount
// it after Middleware on every tenant-scoped route group.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := FromContext(r.Context())
		if info == nil || info.ID.IsDefault() {
			writeJSONErr(w, http.StatusBadRequest, "tenant_required", "a tenant must be specified")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package rbac implements the per-tenant role→page permission model.
// SuperAdmin is checked by the caller before ever consulting
// a Store — it short-circuits every permission check and is never seeded as
// a row.
package rbac

import (
	"context"
	"fmt"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Permission is a single (tenant_id, role_name, page_path) permission row.
type Permission struct {
	TenantID   tenant.ID `json:"tenant_id"`
	RoleName   string    `json:"role_name"`
	PagePath   string    `json:"page_path"`
	PageName   string    `json:"page_name"`
	CanAccess  bool      `json:"can_access"`
	CanView    bool      `json:"can_view"`
	CanCreate  bool      `json:"can_create"`
	CanEdit    bool      `json:"can_edit"`
	CanDelete  bool      `json:"can_delete"`
}

func (p Permission) GetTenantID() tenant.ID { return p.TenantID }

// Store provides database operations for role permissions, every query
// scoped through an isolation.Scope.
type Store struct{}

// NewStore creates a permission Store. Unlike other domain stores this one
// holds no state: every method takes the scope explicitly since permission
// checks happen on the hot path of nearly every handler.
func NewStore() *Store { return &Store{} }

const permColumns = `tenant_id, role_name, page_path, page_name, can_access, can_view, can_create, can_edit, can_delete`

func scanPermission(row interface {
	Scan(dest ...any) error
}) (Permission, error) {
	var p Permission
	var tenantIDRaw int64
	err := row.Scan(&tenantIDRaw, &p.RoleName, &p.PagePath, &p.PageName,
		&p.CanAccess, &p.CanView, &p.CanCreate, &p.CanEdit, &p.CanDelete)
	p.TenantID = tenant.IDFromInt64(tenantIDRaw)
	return p, err
}

// Check resolves the effective permission for a role on a page path.
// A SuperAdmin identity should never reach here — callers check
// identity.IsSuperAdmin first; SuperAdmin short-circuits all permission
// checks and never consults this table.
func (s *Store) Check(ctx context.Context, scope *isolation.Scope, role, pagePath string) (Permission, error) {
	filter, args := scope.Filter(1)
	query := fmt.Sprintf(`SELECT %s FROM role_permissions WHERE %s AND role_name = $%d AND page_path = $%d`,
		permColumns, filter, len(args)+1, len(args)+2)
	args = append(args, role, pagePath)

	row := scope.DB.QueryRow(ctx, query, args...)
	p, err := scanPermission(row)
	if err != nil {
		// No explicit row means no access; this is not itself an error.
		return Permission{TenantID: scope.TenantID(), RoleName: role, PagePath: pagePath}, nil
	}
	return p, nil
}

// List returns every permission row for the tenant, grouped by role on the
// caller's side — used to render the admin permission matrix.
func (s *Store) List(ctx context.Context, scope *isolation.Scope) ([]Permission, error) {
	filter, args := scope.Filter(1)
	query := fmt.Sprintf(`SELECT %s FROM role_permissions WHERE %s ORDER BY role_name, page_path`, permColumns, filter)

	rows, err := scope.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing role permissions: %w", err)
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning role permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert creates or replaces a single permission row. tenant_id is stamped
// from the scope and is never taken from the caller-supplied Permission.
func (s *Store) Upsert(ctx context.Context, scope *isolation.Scope, p Permission) (Permission, error) {
	_, val, err := scope.StampInsert()
	if err != nil {
		return Permission{}, err
	}

	query := `
		INSERT INTO role_permissions (tenant_id, role_name, page_path, page_name, can_access, can_view, can_create, can_edit, can_delete)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, role_name, page_path) DO UPDATE SET
			page_name = EXCLUDED.page_name,
			can_access = EXCLUDED.can_access,
			can_view = EXCLUDED.can_view,
			can_create = EXCLUDED.can_create,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete
		RETURNING ` + permColumns

	row := scope.DB.QueryRow(ctx, query, val, p.RoleName, p.PagePath, p.PageName,
		p.CanAccess, p.CanView, p.CanCreate, p.CanEdit, p.CanDelete)
	return scanPermission(row)
}

// DefaultPermissions is the seeded default permission set applied to every
// newly provisioned tenant. Admin gets full access everywhere; HR gets full
// access to HR-facing pages; Employee gets view-only access to their
// own-data pages. Admin's access is seeded explicitly as data rather than
// special-cased at check time, so the permission table stays the single
// source of truth for every role including Admin.
func DefaultPermissions(tenantID tenant.ID) []Permission {
	full := func(role, path, name string) Permission {
		return Permission{TenantID: tenantID, RoleName: role, PagePath: path, PageName: name,
			CanAccess: true, CanView: true, CanCreate: true, CanEdit: true, CanDelete: true}
	}
	viewOnly := func(role, path, name string) Permission {
		return Permission{TenantID: tenantID, RoleName: role, PagePath: path, PageName: name,
			CanAccess: true, CanView: true}
	}

	var out []Permission
	for _, page := range []struct{ path, name string }{
		{"/employees", "Employees"},
		{"/departments", "Departments"},
		{"/positions", "Positions"},
		{"/leave-requests", "Leave Requests"},
		{"/attendance", "Attendance"},
		{"/billing", "Billing"},
		{"/settings", "Settings"},
	} {
		out = append(out, full(auth.RoleAdmin, page.path, page.name))
	}
	for _, page := range []struct{ path, name string }{
		{"/employees", "Employees"},
		{"/departments", "Departments"},
		{"/positions", "Positions"},
		{"/leave-requests", "Leave Requests"},
		{"/attendance", "Attendance"},
	} {
		out = append(out, full(auth.RoleHR, page.path, page.name))
	}
	for _, page := range []struct{ path, name string }{
		{"/leave-requests", "Leave Requests"},
		{"/attendance", "Attendance"},
	} {
		out = append(out, viewOnly(auth.RoleEmployee, page.path, page.name))
	}
	return out
}

// RequirePermission returns an apperr for a denied action, used by handlers
// after a Check call comes back without the needed flag.
func RequirePermission(ok bool) error {
	if ok {
		return nil
	}
	return apperr.Auth("permission_denied", "you do not have permission to perform this action")
}

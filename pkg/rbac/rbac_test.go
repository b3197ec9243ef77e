package rbac

import (
	"testing"

	"github.com/wisbric/hrctl/internal/auth"
)

func TestDefaultPermissions_AdminFullAccessEverywhere(t *testing.T) {
	perms := DefaultPermissions("7")
	for _, p := range perms {
		if p.RoleName != auth.RoleAdmin {
			continue
		}
		if !(p.CanAccess && p.CanView && p.CanCreate && p.CanEdit && p.CanDelete) {
			t.Errorf("admin permission for %q is not full access: %+v", p.PagePath, p)
		}
	}
}

func TestDefaultPermissions_EmployeeViewOnly(t *testing.T) {
	perms := DefaultPermissions("7")
	found := false
	for _, p := range perms {
		if p.RoleName != auth.RoleEmployee {
			continue
		}
		found = true
		if p.CanCreate || p.CanEdit || p.CanDelete {
			t.Errorf("employee permission for %q grants mutation: %+v", p.PagePath, p)
		}
		if !p.CanView {
			t.Errorf("employee permission for %q should allow viewing", p.PagePath)
		}
	}
	if !found {
		t.Fatal("expected at least one employee permission")
	}
}

func TestDefaultPermissions_TenantStamped(t *testing.T) {
	perms := DefaultPermissions("42")
	for _, p := range perms {
		if p.TenantID != "42" {
			t.Errorf("permission tenant = %q, want %q", p.TenantID, "42")
		}
	}
}

func TestRequirePermission(t *testing.T) {
	if err := RequirePermission(true); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if err := RequirePermission(false); err == nil {
		t.Fatal("expected error for denied permission")
	}
}

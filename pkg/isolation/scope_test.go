package isolation

import (
	"context"
	"testing"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/pkg/tenant"
)

type fakeRow struct {
	tenantID tenant.ID
}

func (f fakeRow) GetTenantID() tenant.ID { return f.tenantID }

func TestScope_Filter(t *testing.T) {
	s := New(nil, "7")
	clause, args := s.Filter(1)
	if clause != "tenant_id = $1" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 1 || args[0] != tenant.ID("7") {
		t.Errorf("args = %v", args)
	}
}

func TestOperatorScope_CrossTenantFilter(t *testing.T) {
	s := NewOperatorScope(nil, "")
	clause, args := s.Filter(1)
	if clause != "TRUE" {
		t.Errorf("clause = %q, want TRUE", clause)
	}
	if args != nil {
		t.Errorf("args = %v, want nil", args)
	}
}

func TestScope_StampInsert(t *testing.T) {
	s := New(nil, "7")
	col, val, err := s.StampInsert()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col != "tenant_id" || val != tenant.ID("7") {
		t.Errorf("col=%q val=%v", col, val)
	}
}

func TestOperatorScope_CrossTenantStampRefused(t *testing.T) {
	s := NewOperatorScope(nil, "")
	if _, _, err := s.StampInsert(); err == nil {
		t.Fatal("expected error stamping through cross-tenant scope")
	}
}

func TestScope_GuardMutation(t *testing.T) {
	s := New(nil, "7")
	if err := s.GuardMutation(fakeRow{tenantID: "7"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := s.GuardMutation(fakeRow{tenantID: "9"})
	if err == nil {
		t.Fatal("expected cross-tenant guard error")
	}
	ae, ok := apperr.As(err)
	if !ok || ae.Category != apperr.CategoryAuth {
		t.Fatalf("expected CategoryAuth error, got %v", err)
	}
}

func TestScope_Commit(t *testing.T) {
	s := New(nil, "7")
	if err := s.Commit(context.Background(), fakeRow{tenantID: "7"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := s.Commit(context.Background(), fakeRow{tenantID: "7"}, fakeRow{tenantID: "9"}); err == nil {
		t.Fatal("expected cross-tenant commit to be rejected")
	}
}

func TestGuardImmutableColumns(t *testing.T) {
	if err := GuardImmutableColumns("name", "status"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := GuardImmutableColumns("name", "tenant_id"); err == nil {
		t.Fatal("expected immutable field error")
	}
}

package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeClaims struct {
	id    ID
	super bool
	ok    bool
}

func (f fakeClaims) TenantClaim(r *http.Request) (ID, bool, bool) {
	return f.id, f.super, f.ok
}

type fakeLookup struct {
	byDomain map[string]*Info
	byID     map[ID]*Info
}

func (f fakeLookup) LookupByID(ctx context.Context, id ID) (*Info, error) {
	if info, ok := f.byID[id]; ok {
		return info, nil
	}
	return nil, http.ErrNoCookie
}

func (f fakeLookup) LookupByDomain(ctx context.Context, domain string) (*Info, error) {
	if info, ok := f.byDomain[domain]; ok {
		return info, nil
	}
	return nil, http.ErrNoCookie
}

func TestResolve_HeaderFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-Id", "42")

	id, super, err := Resolve(context.Background(), r, fakeClaims{}, fakeLookup{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q, want %q", id, "42")
	}
	if super {
		t.Error("expected super=false")
	}
}

func TestResolve_DefaultWhenNothingMatches(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	id, _, err := Resolve(context.Background(), r, fakeClaims{}, fakeLookup{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != Default {
		t.Errorf("id = %q, want Default", id)
	}
}

func TestResolve_ClaimWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-Id", "42")

	id, _, err := Resolve(context.Background(), r, fakeClaims{id: "7", ok: true}, fakeLookup{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "7" {
		t.Errorf("id = %q, want %q", id, "7")
	}
}

func TestResolve_MismatchRejected(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-Id", "42")

	_, _, err := Resolve(context.Background(), r, fakeClaims{id: "7", ok: true}, fakeLookup{})
	if err == nil {
		t.Fatal("expected TenantMismatch error")
	}
}

func TestRequireTenant(t *testing.T) {
	called := false
	h := RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(NewContext(r.Context(), &Info{ID: Default}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if called {
		t.Error("expected handler not to be called for Default tenant")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

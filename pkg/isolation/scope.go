// Package isolation implements the row-level tenant isolation layer (C2):
// every tenant-scoped Store builds its SQL around a Scope, which supplies
// the WHERE-clause filter, the insert-time tenant_id stamp, the
// cross-tenant mutation guard, and the tenant_id immutability guard.
package isolation

import (
	"context"
	"fmt"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// TenantScoped is implemented by any entity that carries an owning tenant.
type TenantScoped interface {
	GetTenantID() tenant.ID
}

// Scope binds a database handle to the tenant that is allowed to read and
// write through it. Every tenant-scoped Store method takes a *Scope instead
// of a raw db.DBTX.
type Scope struct {
	DB       db.DBTX
	tenantID tenant.ID
	bypass   bool
	// crossTenant is true only for an OperatorScope reading with no explicit
	// tenant filter (the "all tenants" operator dashboard case).
	crossTenant bool
}

// New builds a Scope for an ordinary, single-tenant request.
func New(dbtx db.DBTX, tenantID tenant.ID) *Scope {
	return &Scope{DB: dbtx, tenantID: tenantID}
}

// OperatorScope is the strict-mode variant used only by pkg/operator
// handlers. Every OperatorScope call must be paired with an audit log entry
// by its caller.
type OperatorScope struct {
	Scope
}

// NewOperatorScope builds a Scope for an operator request. When
// explicitTenant is non-empty, reads/writes are still confined to that one
// tenant (strict operator mode) but the mutation guard is relaxed to allow
// acting on behalf of that tenant without holding its session. When
// explicitTenant is empty, reads are cross-tenant (used by dashboards and
// listings); writes through a cross-tenant scope are refused.
func NewOperatorScope(dbtx db.DBTX, explicitTenant tenant.ID) *OperatorScope {
	s := &OperatorScope{Scope{DB: dbtx, tenantID: explicitTenant, bypass: true}}
	if explicitTenant == "" {
		s.crossTenant = true
	}
	return s
}

// TenantID returns the tenant this scope is bound to. Empty for a
// cross-tenant OperatorScope.
func (s *Scope) TenantID() tenant.ID { return s.tenantID }

// Filter returns the WHERE-clause fragment and its argument enforcing
// tenant isolation, starting bind parameters at argN. A cross-tenant
// OperatorScope returns "TRUE" (no restriction); every other scope returns
// "tenant_id = $N".
func (s *Scope) Filter(argN int) (string, []any) {
	if s.crossTenant {
		return "TRUE", nil
	}
	return fmt.Sprintf("tenant_id = $%d", argN), []any{s.tenantID}
}

// StampInsert returns the tenant_id column and value to add to an INSERT's
// column/value lists, always overwriting any caller-supplied tenant_id (the
// stamping half of C2). It is an error to stamp through a cross-tenant scope.
func (s *Scope) StampInsert() (column string, value any, err error) {
	if s.crossTenant {
		return "", nil, apperr.Internal("cross_tenant_insert", fmt.Errorf("cannot insert through a cross-tenant operator scope"))
	}
	return "tenant_id", s.tenantID, nil
}

// GuardMutation is the mutation guard: it fails unless every mutated row's
// tenant_id matches the scope's tenant. Bypass scopes bound to an explicit
// tenant still enforce this against that tenant; no scope skips the check,
// and reads never call GuardMutation. A mismatch here
// means the caller is attempting to touch another tenant's row, which is a
// request-level authorization failure (403), not a server fault.
func (s *Scope) GuardMutation(rows ...TenantScoped) error {
	for _, row := range rows {
		if row.GetTenantID() != s.tenantID {
			return apperr.Auth("cross_tenant_access", fmt.Sprintf(
				"mutated row belongs to tenant %q, scope is bound to %q", row.GetTenantID(), s.tenantID))
		}
	}
	return nil
}

// GuardImmutableColumns is the immutability guard: no UPDATE statement may
// assign tenant_id, not even through an operator bypass scope. Reassigning
// tenant_id is never something a well-formed caller attempts, so this
// reports an internal invariant violation (500) rather than a request-level
// authorization failure.
func GuardImmutableColumns(columns ...string) error {
	for _, c := range columns {
		if c == "tenant_id" {
			return apperr.Internal("immutable_field", fmt.Errorf("tenant_id cannot be reassigned"))
		}
	}
	return nil
}

// Commit applies GuardMutation to every row about to be written and, only if
// every row passes, returns nil so the caller proceeds with its UPDATE. It is
// the single choke point every Store update/delete path should call before
// issuing its statement, so a cross-tenant mutation attempt is rejected
// before it reaches SQL rather than relying solely on a WHERE tenant_id
// filter silently matching zero rows.
func (s *Scope) Commit(ctx context.Context, mutated ...TenantScoped) error {
	return s.GuardMutation(mutated...)
}

// WithTx returns a copy of the scope bound to the given transaction handle,
// preserving its tenant and bypass mode — used so a Store method can open a
// transaction and keep using the same Scope semantics inside it.
func (s *Scope) WithTx(tx db.DBTX) *Scope {
	cp := *s
	cp.DB = tx
	return &cp
}

// RunFilteredQuery is a small convenience used by Store types with simple
// single-table queries: it appends the tenant filter to a caller-supplied
// WHERE fragment and executes the query.
func (s *Scope) RunFilteredQuery(ctx context.Context, selectClause, table, extraWhere string, extraArgs []any) (string, []any) {
	filterClause, filterArgs := s.Filter(len(extraArgs) + 1)
	where := filterClause
	if extraWhere != "" {
		where = extraWhere + " AND " + filterClause
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectClause, table, where)
	return query, append(append([]any{}, extraArgs...), filterArgs...)
}

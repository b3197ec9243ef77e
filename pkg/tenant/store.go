package tenant

import (
	"context"
	"fmt"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/db"
)

// Store implements Lookup against the tenants table. It is the concrete
// dependency Middleware needs at wiring time.
type Store struct {
	db db.DBTX
}

func NewStore(dbtx db.DBTX) *Store { return &Store{db: dbtx} }

const tenantColumns = `id, name, domain, status, max_employees, grace_period_ends_at, scheduled_deletion_at`

func (s *Store) LookupByID(ctx context.Context, id ID) (*Info, error) {
	idNum, err := id.Int64()
	if err != nil {
		return nil, apperr.Validation("invalid_tenant_id", err.Error())
	}
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM tenants WHERE id = $1`, tenantColumns), idNum)
	return scanTenantInfo(row)
}

func (s *Store) LookupByDomain(ctx context.Context, domain string) (*Info, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM tenants WHERE domain = $1`, tenantColumns), domain)
	return scanTenantInfo(row)
}

func scanTenantInfo(row interface{ Scan(dest ...any) error }) (*Info, error) {
	var info Info
	var idRaw int64
	if err := row.Scan(&idRaw, &info.Name, &info.Domain, &info.Status, &info.MaxEmployees,
		&info.GracePeriodEndsAt, &info.ScheduledDeletionAt); err != nil {
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}
	info.ID = IDFromInt64(idRaw)
	return &info, nil
}

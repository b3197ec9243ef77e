package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/wisbric/hrctl/pkg/tenant"
)

// DeletionSweeper is the background worker that advances tenants through
// the tail of the lifecycle: a Cancelled tenant whose grace period has
// elapsed moves to PendingDeletion, and a PendingDeletion tenant whose
// retention window has elapsed is hard-deleted. Runs on the same
// ticker-over-all-rows shape as the other background scanners in this
// service.
type DeletionSweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
}

func NewDeletionSweeper(manager *Manager, interval time.Duration, logger *slog.Logger) *DeletionSweeper {
	return &DeletionSweeper{manager: manager, interval: interval, logger: logger}
}

func (s *DeletionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *DeletionSweeper) tick(ctx context.Context) {
	graceExpired, err := s.manager.listGraceExpired(ctx)
	if err != nil {
		s.logger.Error("listing grace-expired tenants", "error", err)
	}
	for _, id := range graceExpired {
		if err := s.manager.ScheduleDeletion(ctx, id, "deletion sweeper"); err != nil {
			s.logger.Error("scheduling deletion", "tenant_id", id, "error", err)
		}
	}

	deletable, err := s.manager.listDeletionDue(ctx)
	if err != nil {
		s.logger.Error("listing deletion-due tenants", "error", err)
		return
	}
	for _, id := range deletable {
		if err := s.manager.HardDelete(ctx, id); err != nil {
			s.logger.Error("hard deleting tenant", "tenant_id", id, "error", err)
		}
	}
	if len(graceExpired) > 0 || len(deletable) > 0 {
		s.logger.Info("deletion sweep completed", "scheduled", len(graceExpired), "deleted", len(deletable))
	}
}

// listGraceExpired returns Cancelled tenants whose grace_period_ends_at has
// passed and are not yet PendingDeletion.
func (m *Manager) listGraceExpired(ctx context.Context) ([]tenant.ID, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT id FROM tenants WHERE status = $1 AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at < now()`,
		StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTenantIDs(rows)
}

// listDeletionDue returns PendingDeletion tenants whose scheduled_deletion_at
// has passed.
func (m *Manager) listDeletionDue(ctx context.Context) ([]tenant.ID, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT id FROM tenants WHERE status = $1 AND scheduled_deletion_at IS NOT NULL AND scheduled_deletion_at < now()`,
		StatusPendingDeletion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTenantIDs(rows)
}

func scanTenantIDs(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]tenant.ID, error) {
	var out []tenant.ID
	for rows.Next() {
		var idRaw int64
		if err := rows.Scan(&idRaw); err != nil {
			return nil, err
		}
		out = append(out, tenant.IDFromInt64(idRaw))
	}
	return out, rows.Err()
}

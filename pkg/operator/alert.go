package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/hrctl/pkg/notify"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Alert is an operator-visible record of a notify.Message, kept open
// ("firing") until an operator marks or resolves it. Severity is one of
// info/warning/major/critical (see severityFor); the dashboard's alert
// weight counts open alerts regardless of severity, and severities appear
// only in its histogram.
type Alert struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   tenant.ID  `json:"tenant_id"`
	Kind       notify.Kind `json:"kind"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Status     string     `json:"status"` // firing, acknowledged, resolved
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

const (
	AlertStatusFiring       = "firing"
	AlertStatusAcknowledged = "acknowledged"
	AlertStatusResolved     = "resolved"
)

// severityFor maps a notification kind to the alert severity the dashboard
// weights. Suspension and cancellation are the most consequential outcomes
// a tenant's usage or billing health can produce; plan changes are routine.
func severityFor(kind notify.Kind) string {
	switch kind {
	case notify.KindSuspension, notify.KindCancellation:
		return "critical"
	case notify.KindPaymentFail, notify.KindOverage:
		return "major"
	case notify.KindUsageWarning:
		return "warning"
	default:
		return "info"
	}
}

// RecordAlert implements notify.AlertRecorder. At most one firing alert is
// kept per (tenant, kind): a re-raise while one is already firing reuses the
// existing row instead of inserting a duplicate, enforced at the database
// level by idx_alerts_one_firing_per_kind so a racing insert can never slip
// past this check.
func (s *Store) RecordAlert(ctx context.Context, tenantID tenant.ID, kind notify.Kind, text string) error {
	idNum, err := tenantID.Int64()
	if err != nil {
		return fmt.Errorf("resolving tenant id: %w", err)
	}

	var existing uuid.UUID
	err = s.db.QueryRow(ctx,
		`SELECT id FROM alerts WHERE tenant_id = $1 AND kind = $2 AND status = $3`,
		idNum, string(kind), AlertStatusFiring).Scan(&existing)
	if err == nil {
		return nil
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO alerts (tenant_id, kind, severity, message, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, kind) WHERE status = 'firing' DO NOTHING`,
		idNum, string(kind), severityFor(kind), text, AlertStatusFiring)
	if err != nil {
		return fmt.Errorf("recording alert: %w", err)
	}
	return nil
}

// MarkAlert acknowledges an alert without closing it — it remains counted
// in the dashboard's severity histogram but signals an operator has seen it.
func (s *Store) MarkAlert(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE alerts SET status = $1 WHERE id = $2 AND status = $3`,
		AlertStatusAcknowledged, id, AlertStatusFiring)
	if err != nil {
		return fmt.Errorf("marking alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s not found or already resolved", id)
	}
	return nil
}

// ResolveAlert closes an alert so it no longer counts toward the dashboard's
// alert weight.
func (s *Store) ResolveAlert(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE alerts SET status = $1, resolved_at = now() WHERE id = $2 AND status != $1`,
		AlertStatusResolved, id)
	if err != nil {
		return fmt.Errorf("resolving alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s not found or already resolved", id)
	}
	return nil
}

// ListAlerts returns open (non-resolved) alerts, most recent first, for the
// given tenant or across all tenants when id is empty.
func (s *Store) ListAlerts(ctx context.Context, id tenant.ID) ([]Alert, error) {
	var rows pgx.Rows
	var err error
	if id == "" {
		rows, err = s.db.Query(ctx, `
			SELECT id, tenant_id, kind, severity, message, status, created_at, resolved_at
			FROM alerts WHERE status != $1 ORDER BY created_at DESC`, AlertStatusResolved)
	} else {
		idNum, perr := id.Int64()
		if perr != nil {
			return nil, fmt.Errorf("resolving tenant id: %w", perr)
		}
		rows, err = s.db.Query(ctx, `
			SELECT id, tenant_id, kind, severity, message, status, created_at, resolved_at
			FROM alerts WHERE tenant_id = $1 AND status != $2 ORDER BY created_at DESC`, idNum, AlertStatusResolved)
	}
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var tenantIDNum int64
		if err := rows.Scan(&a.ID, &tenantIDNum, &a.Kind, &a.Severity, &a.Message, &a.Status, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.TenantID = tenant.IDFromInt64(tenantIDNum)
		out = append(out, a)
	}
	return out, rows.Err()
}

// alertCountsByTenant returns the number of open alerts per tenant, used to
// compute the dashboard's alert weight.
func (s *Store) alertCountsByTenant(ctx context.Context) (map[tenant.ID]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT tenant_id, count(*) FROM alerts WHERE status != $1 GROUP BY tenant_id`, AlertStatusResolved)
	if err != nil {
		return nil, fmt.Errorf("counting alerts by tenant: %w", err)
	}
	defer rows.Close()

	out := make(map[tenant.ID]int64)
	for rows.Next() {
		var idNum int64
		var count int64
		if err := rows.Scan(&idNum, &count); err != nil {
			return nil, fmt.Errorf("scanning alert count: %w", err)
		}
		out[tenant.IDFromInt64(idNum)] = count
	}
	return out, rows.Err()
}

// severityHistogram returns counts of open alerts by severity across all
// tenants, for Dashboard.SeverityHistogram.
func (s *Store) severityHistogram(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT severity, count(*) FROM alerts WHERE status != $1 GROUP BY severity`, AlertStatusResolved)
	if err != nil {
		return nil, fmt.Errorf("building severity histogram: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("scanning severity count: %w", err)
		}
		out[severity] = count
	}
	return out, rows.Err()
}

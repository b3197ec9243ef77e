package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/internal/httpserver"
	"github.com/wisbric/hrctl/pkg/lifecycle"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Store runs the cross-tenant reads backing C7. Every query here
// deliberately bypasses isolation.Scope's single-tenant filter (it IS the
// cross-tenant operator view) — callers must still log to audit.Writer.
type Store struct {
	db db.DBTX
}

func NewStore(dbtx db.DBTX) *Store { return &Store{db: dbtx} }

// TenantFilters narrows ListTenants by status and/or plan name.
type TenantFilters struct {
	Status string
	Plan   string
}

func (s *Store) ListTenants(ctx context.Context, filters TenantFilters, params httpserver.OffsetParams) ([]TenantSummary, int, error) {
	where := "TRUE"
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if filters.Plan != "" {
		args = append(args, filters.Plan)
		where += fmt.Sprintf(" AND p.name = $%d", len(args))
	}

	var total int
	countQuery := fmt.Sprintf(`
		SELECT count(*)
		FROM tenants t
		LEFT JOIN subscriptions s ON s.tenant_id = t.id AND s.status IN ('trialing', 'active', 'past_due')
		LEFT JOIN plans p ON p.id = s.plan_id
		WHERE %s`, where)
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tenants: %w", err)
	}

	args = append(args, params.PageSize, params.Offset)
	listQuery := fmt.Sprintf(`
		SELECT t.id, t.name, t.domain, t.status, coalesce(p.name, ''), coalesce(t.max_employees, 0), t.created_at
		FROM tenants t
		LEFT JOIN subscriptions s ON s.tenant_id = t.id AND s.status IN ('trialing', 'active', 'past_due')
		LEFT JOIN plans p ON p.id = s.plan_id
		WHERE %s
		ORDER BY t.created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var out []TenantSummary
	for rows.Next() {
		var t TenantSummary
		var idRaw int64
		if err := rows.Scan(&idRaw, &t.Name, &t.Domain, &t.Status, &t.PlanName, &t.EmployeeCount, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning tenant summary: %w", err)
		}
		t.ID = tenant.IDFromInt64(idRaw)
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *Store) TenantDetail(ctx context.Context, id tenant.ID) (TenantDetail, error) {
	idNum, err := id.Int64()
	if err != nil {
		return TenantDetail{}, fmt.Errorf("resolving tenant id: %w", err)
	}

	var d TenantDetail
	var idRaw int64
	err = s.db.QueryRow(ctx, `
		SELECT t.id, t.name, t.domain, t.status, coalesce(p.name, ''), coalesce(t.max_employees, 0), t.created_at
		FROM tenants t
		LEFT JOIN subscriptions s ON s.tenant_id = t.id AND s.status IN ('trialing', 'active', 'past_due')
		LEFT JOIN plans p ON p.id = s.plan_id
		WHERE t.id = $1`, idNum,
	).Scan(&idRaw, &d.Name, &d.Domain, &d.Status, &d.PlanName, &d.EmployeeCount, &d.CreatedAt)
	if err != nil {
		return TenantDetail{}, fmt.Errorf("loading tenant detail: %w", err)
	}
	d.ID = tenant.IDFromInt64(idRaw)

	d.SubscriptionHistory, err = s.subscriptionHistory(ctx, idNum)
	if err != nil {
		return TenantDetail{}, err
	}
	d.RecentEvents, err = s.recentLifecycleEvents(ctx, id, idNum, 20)
	if err != nil {
		return TenantDetail{}, err
	}

	row := s.db.QueryRow(ctx,
		`SELECT user_count, api_request_count, storage_bytes_used FROM usage_metrics
		 WHERE tenant_id = $1 ORDER BY period_start DESC LIMIT 1`, idNum)
	_ = row.Scan(&d.UserCount, &d.APIRequestCount, &d.StorageBytesUsed) // best-effort: no usage row yet is not an error

	return d, nil
}

func (s *Store) subscriptionHistory(ctx context.Context, idNum int64) ([]SubscriptionHistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.name, s.status, s.current_period_start, s.current_period_end
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.tenant_id = $1
		ORDER BY s.current_period_start DESC`, idNum)
	if err != nil {
		return nil, fmt.Errorf("loading subscription history: %w", err)
	}
	defer rows.Close()

	var out []SubscriptionHistoryEntry
	for rows.Next() {
		var e SubscriptionHistoryEntry
		var end time.Time
		if err := rows.Scan(&e.PlanName, &e.Status, &e.StartedAt, &end); err != nil {
			return nil, fmt.Errorf("scanning subscription history: %w", err)
		}
		if e.Status != "active" && e.Status != "trialing" {
			e.EndedAt = &end
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) recentLifecycleEvents(ctx context.Context, id tenant.ID, idNum int64, limit int) ([]lifecycle.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT from_status, to_status, reason, triggered_by, occurred_at
		FROM lifecycle_events WHERE tenant_id = $1 ORDER BY occurred_at DESC LIMIT $2`, idNum, limit)
	if err != nil {
		return nil, fmt.Errorf("loading lifecycle events: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.Event
	for rows.Next() {
		e := lifecycle.Event{TenantID: id}
		if err := rows.Scan(&e.FromStatus, &e.ToStatus, &e.Reason, &e.TriggeredBy, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning lifecycle event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// dashboardRow is the raw per-tenant data the Dashboard score is computed
// from.
type dashboardRow struct {
	TenantID      tenant.ID
	Name          string
	EmployeeCount int64
	APIRequests   int64
	StorageBytes  int64
	AlertCount    int64
}

func (s *Store) dashboardRows(ctx context.Context) ([]dashboardRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id, t.name, coalesce(m.employee_count, 0), coalesce(m.api_request_count, 0), coalesce(m.storage_bytes_used, 0)
		FROM tenants t
		LEFT JOIN usage_metrics m ON m.tenant_id = t.id AND m.period_start = date_trunc('month', now())
		WHERE t.status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("loading dashboard rows: %w", err)
	}
	defer rows.Close()

	var out []dashboardRow
	for rows.Next() {
		var d dashboardRow
		var idRaw int64
		if err := rows.Scan(&idRaw, &d.Name, &d.EmployeeCount, &d.APIRequests, &d.StorageBytes); err != nil {
			return nil, fmt.Errorf("scanning dashboard row: %w", err)
		}
		d.TenantID = tenant.IDFromInt64(idRaw)
		out = append(out, d)
	}
	return out, rows.Err()
}

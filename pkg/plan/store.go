package plan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Store is the database-backed half of the catalog: plan lookups and
// subscription CRUD. Plans are global (not tenant-scoped); subscriptions
// are tenant-scoped and go through isolation.Scope like any other entity.
type Store struct {
	db db.DBTX
}

func NewStore(dbtx db.DBTX) *Store { return &Store{db: dbtx} }

func (s *Store) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, monthly_price, quarterly_price, yearly_price, currency,
		        max_employees, max_users, max_storage_bytes, trial_days, visible, features
		 FROM plans WHERE id = $1`, id)
	return scanPlan(row)
}

// FreePlan returns the plan assigned to newly provisioned tenants.
func (s *Store) FreePlan(ctx context.Context) (Plan, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, monthly_price, quarterly_price, yearly_price, currency,
		        max_employees, max_users, max_storage_bytes, trial_days, visible, features
		 FROM plans WHERE monthly_price = 0 AND visible = true ORDER BY created_at LIMIT 1`)
	return scanPlan(row)
}

func (s *Store) ListVisible(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, monthly_price, quarterly_price, yearly_price, currency,
		        max_employees, max_users, max_storage_bytes, trial_days, visible, features
		 FROM plans WHERE visible = true ORDER BY monthly_price`)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(row interface{ Scan(dest ...any) error }) (Plan, error) {
	var p Plan
	var featuresRaw []byte
	err := row.Scan(&p.ID, &p.Name, &p.MonthlyPrice, &p.QuarterlyPrice, &p.YearlyPrice, &p.Currency,
		&p.MaxEmployees, &p.MaxUsers, &p.MaxStorageBytes, &p.TrialDays, &p.Visible, &featuresRaw)
	if err != nil {
		return Plan{}, fmt.Errorf("scanning plan: %w", err)
	}
	if len(featuresRaw) > 0 {
		if err := json.Unmarshal(featuresRaw, &p.Features); err != nil {
			return Plan{}, fmt.Errorf("decoding plan features: %w", err)
		}
	}
	return p, nil
}

// ActiveSubscription returns the tenant's current non-terminal subscription.
func (s *Store) ActiveSubscription(ctx context.Context, scope *isolation.Scope) (Subscription, error) {
	filter, args := scope.Filter(1)
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, tenant_id, plan_id, status, external_provider_id, price_snapshot,
		        current_period_start, current_period_end, trial_end, auto_renew
		 FROM subscriptions
		 WHERE %s AND status IN ('trialing', 'active', 'past_due')
		 ORDER BY current_period_start DESC LIMIT 1`, filter), args...)
	return scanSubscription(row)
}

func scanSubscription(row interface{ Scan(dest ...any) error }) (Subscription, error) {
	var sub Subscription
	var tenantIDRaw int64
	err := row.Scan(&sub.ID, &tenantIDRaw, &sub.PlanID, &sub.Status, &sub.ExternalProviderID,
		&sub.PriceSnapshot, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialEnd, &sub.AutoRenew)
	sub.TenantID = tenant.IDFromInt64(tenantIDRaw)
	if err != nil {
		return Subscription{}, fmt.Errorf("scanning subscription: %w", err)
	}
	return sub, nil
}

// CreateSubscription inserts a new subscription for the tenant. A second
// non-terminal subscription for the same tenant is rejected by the table's
// unique partial index (idx_subscriptions_tenant_nonterminal) and reported as
// a conflict; Catalog does no pre-check of its own.
func (s *Store) CreateSubscription(ctx context.Context, scope *isolation.Scope, sub Subscription) (Subscription, error) {
	_, val, err := scope.StampInsert()
	if err != nil {
		return Subscription{}, err
	}
	row := s.db.QueryRow(ctx,
		`INSERT INTO subscriptions (tenant_id, plan_id, status, external_provider_id, price_snapshot,
		                            current_period_start, current_period_end, trial_end, auto_renew)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, tenant_id, plan_id, status, external_provider_id, price_snapshot,
		           current_period_start, current_period_end, trial_end, auto_renew`,
		val, sub.PlanID, sub.Status, sub.ExternalProviderID, sub.PriceSnapshot,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialEnd, sub.AutoRenew)
	out, err := scanSubscription(row)
	if err != nil {
		return Subscription{}, apperr.Conflict("subscription_conflict", "tenant already has a non-terminal subscription")
	}
	return out, nil
}

// UpdateSubscriptionPlan switches an existing subscription to a new plan in
// place, used by Catalog.Switch. It loads the subscription's owning tenant
// first and runs it through the scope's mutation guard before writing, so an
// id belonging to another tenant is rejected as a cross-tenant access (403)
// rather than silently reported as "not found" by a WHERE filter matching
// zero rows.
func (s *Store) UpdateSubscriptionPlan(ctx context.Context, scope *isolation.Scope, subID uuid.UUID, newPlanID uuid.UUID, priceSnapshot int64) error {
	var ownerRaw int64
	if err := s.db.QueryRow(ctx, `SELECT tenant_id FROM subscriptions WHERE id = $1`, subID).Scan(&ownerRaw); err != nil {
		return apperr.NotFound("subscription_not_found", "no such subscription")
	}
	owner := Subscription{TenantID: tenant.IDFromInt64(ownerRaw)}
	if err := scope.Commit(ctx, owner); err != nil {
		return err
	}

	filter, args := scope.Filter(5)
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE subscriptions SET plan_id = $1, price_snapshot = $2, status = $3 WHERE id = $4 AND %s`,
		filter),
		append([]any{newPlanID, priceSnapshot, SubStatusActive, subID}, args...)...)
	if err != nil {
		return apperr.Transient("db_update_subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("subscription_not_found", "no matching subscription for tenant")
	}
	return nil
}

// UpdateTenantMaxEmployees mirrors a plan's employee cap onto the tenant row
// so C2/C6 enforcement can read it without joining the plan catalog.
func (s *Store) UpdateTenantMaxEmployees(ctx context.Context, tenantID tenant.ID, maxEmployees int) error {
	idNum, err := tenantID.Int64()
	if err != nil {
		return fmt.Errorf("resolving tenant id: %w", err)
	}
	_, err = s.db.Exec(ctx, `UPDATE tenants SET max_employees = $1 WHERE id = $2`, maxEmployees, idNum)
	if err != nil {
		return apperr.Transient("db_update_max_employees", err)
	}
	return nil
}

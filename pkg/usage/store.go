package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/hrdomain"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Store is the database-backed half of C6.
type Store struct {
	db        db.DBTX
	employees *hrdomain.EmployeeStore
}

func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx, employees: hrdomain.NewEmployeeStore()}
}

// ensurePeriod implements the if-not-exists row creation: INSERT ... ON
// CONFLICT DO NOTHING, then a re-select. A newly created row is seeded with
// the live employee count; user_count starts at 0.
func (s *Store) ensurePeriod(ctx context.Context, scope *isolation.Scope, id tenant.ID, at time.Time) (Metric, error) {
	period := periodStart(at)

	_, val, err := scope.StampInsert()
	if err != nil {
		return Metric{}, err
	}

	employeeCount, err := s.employees.Count(ctx, scope)
	if err != nil {
		return Metric{}, fmt.Errorf("seeding employee count: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO usage_metrics (tenant_id, period_start, employee_count, user_count,
		                            api_request_count, api_request_count_today, last_api_request_date,
		                            storage_bytes_used, feature_usage, last_updated)
		 VALUES ($1, $2, $3, 0, 0, 0, $2, 0, '{}'::jsonb, now())
		 ON CONFLICT (tenant_id, period_start) DO NOTHING`,
		val, period, employeeCount)
	if err != nil {
		return Metric{}, apperr.Transient("db_ensure_usage_period", err)
	}

	return s.get(ctx, scope, period)
}

func (s *Store) get(ctx context.Context, scope *isolation.Scope, period time.Time) (Metric, error) {
	filter, args := scope.Filter(2)
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT tenant_id, period_start, employee_count, user_count, api_request_count,
		        api_request_count_today, last_api_request_date, storage_bytes_used, feature_usage, last_updated
		 FROM usage_metrics WHERE period_start = $1 AND %s`, filter), append([]any{period}, args...)...)
	return scanMetric(row)
}

func scanMetric(row interface{ Scan(dest ...any) error }) (Metric, error) {
	var m Metric
	var tenantIDRaw int64
	var featureRaw []byte
	err := row.Scan(&tenantIDRaw, &m.PeriodStart, &m.EmployeeCount, &m.UserCount,
		&m.APIRequestCount, &m.APIRequestCountToday, &m.LastAPIRequestDate,
		&m.StorageBytesUsed, &featureRaw, &m.LastUpdated)
	m.TenantID = tenant.IDFromInt64(tenantIDRaw)
	if err != nil {
		return Metric{}, fmt.Errorf("scanning usage metric: %w", err)
	}
	m.FeatureUsage = map[string]int64{}
	if len(featureRaw) > 0 {
		if err := json.Unmarshal(featureRaw, &m.FeatureUsage); err != nil {
			return Metric{}, fmt.Errorf("decoding feature usage: %w", err)
		}
	}
	return m, nil
}

// CurrentPeriod returns (creating if necessary) this month's metric row.
func (s *Store) CurrentPeriod(ctx context.Context, scope *isolation.Scope) (Metric, error) {
	return s.ensurePeriod(ctx, scope, time.Now(), time.Now())
}

// IncrementAPIRequests bumps both the monthly and daily request counters,
// resetting the daily counter when the last request fell on a previous day.
func (s *Store) IncrementAPIRequests(ctx context.Context, scope *isolation.Scope, delta int64) error {
	if _, err := s.ensurePeriod(ctx, scope, time.Now(), time.Now()); err != nil {
		return err
	}
	period := periodStart(time.Now())
	today := time.Now().UTC().Truncate(24 * time.Hour)
	filter, args := scope.Filter(4)
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE usage_metrics
		 SET api_request_count = api_request_count + $1,
		     api_request_count_today = CASE WHEN last_api_request_date::date = $2::date THEN api_request_count_today + $1 ELSE $1 END,
		     last_api_request_date = now(),
		     last_updated = now()
		 WHERE period_start = $3 AND %s`, filter),
		append([]any{delta, today, period}, args...)...)
	if err != nil {
		return apperr.Transient("db_increment_api_requests", err)
	}
	return nil
}

func (s *Store) UpdateEmployeeCount(ctx context.Context, scope *isolation.Scope, count int) error {
	return s.updateColumn(ctx, scope, "employee_count", count)
}

func (s *Store) UpdateUserCount(ctx context.Context, scope *isolation.Scope, count int) error {
	return s.updateColumn(ctx, scope, "user_count", count)
}

func (s *Store) updateColumn(ctx context.Context, scope *isolation.Scope, column string, value int) error {
	if _, err := s.ensurePeriod(ctx, scope, time.Now(), time.Now()); err != nil {
		return err
	}
	period := periodStart(time.Now())
	filter, args := scope.Filter(3)
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE usage_metrics SET %s = $1, last_updated = now() WHERE period_start = $2 AND %s`, column, filter),
		append([]any{value, period}, args...)...)
	if err != nil {
		return apperr.Transient("db_update_"+column, err)
	}
	return nil
}

// AddStorageBytes adjusts storage usage by delta, which may be negative.
func (s *Store) AddStorageBytes(ctx context.Context, scope *isolation.Scope, delta int64) error {
	if _, err := s.ensurePeriod(ctx, scope, time.Now(), time.Now()); err != nil {
		return err
	}
	period := periodStart(time.Now())
	filter, args := scope.Filter(3)
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE usage_metrics SET storage_bytes_used = greatest(0, storage_bytes_used + $1), last_updated = now()
		 WHERE period_start = $2 AND %s`, filter),
		append([]any{delta, period}, args...)...)
	if err != nil {
		return apperr.Transient("db_add_storage_bytes", err)
	}
	return nil
}

// IncrementFeatureUsage does a read-modify-write of the feature_usage JSON
// map in one transaction (the caller is expected to run this inside a
// transaction-bound scope when racing writers matter).
func (s *Store) IncrementFeatureUsage(ctx context.Context, scope *isolation.Scope, key string, delta int64) error {
	m, err := s.ensurePeriod(ctx, scope, time.Now(), time.Now())
	if err != nil {
		return err
	}
	if m.FeatureUsage == nil {
		m.FeatureUsage = map[string]int64{}
	}
	m.FeatureUsage[key] += delta

	b, err := json.Marshal(m.FeatureUsage)
	if err != nil {
		return fmt.Errorf("encoding feature usage: %w", err)
	}

	period := periodStart(time.Now())
	filter, args := scope.Filter(3)
	_, err = s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE usage_metrics SET feature_usage = $1, last_updated = now() WHERE period_start = $2 AND %s`, filter),
		append([]any{b, period}, args...)...)
	if err != nil {
		return apperr.Transient("db_increment_feature_usage", err)
	}
	return nil
}

// AllActiveTenantMetrics returns the row for the given period of every tenant
// whose status is active, used by Scanner's sweep.
func (s *Store) AllActiveTenantMetrics(ctx context.Context, period time.Time) ([]Metric, error) {
	rows, err := s.db.Query(ctx,
		`SELECT m.tenant_id, m.period_start, m.employee_count, m.user_count, m.api_request_count,
		        m.api_request_count_today, m.last_api_request_date, m.storage_bytes_used, m.feature_usage, m.last_updated
		 FROM usage_metrics m
		 JOIN tenants t ON t.id = m.tenant_id
		 WHERE m.period_start = $1 AND t.status = 'active'`, period)
	if err != nil {
		return nil, fmt.Errorf("listing active tenant metrics: %w", err)
	}
	defer rows.Close()
	var out []Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// OverageSince returns the tenant's durably recorded overage start time, nil
// if it is not currently considered over a hard limit. Backed by a column on
// tenants rather than an in-process map so a scanner restart resumes the
// grace-window clock instead of resetting it.
func (s *Store) OverageSince(ctx context.Context, id tenant.ID) (*time.Time, error) {
	idNum, err := id.Int64()
	if err != nil {
		return nil, fmt.Errorf("resolving tenant id: %w", err)
	}
	var since *time.Time
	if err := s.db.QueryRow(ctx, `SELECT overage_since FROM tenants WHERE id = $1`, idNum).Scan(&since); err != nil {
		return nil, apperr.Transient("db_read_overage_since", err)
	}
	return since, nil
}

// SetOverageSince records the moment a tenant first went over a hard limit.
// It only writes when the column is still unset so a later tick does not
// reset an already-running clock.
func (s *Store) SetOverageSince(ctx context.Context, id tenant.ID, at time.Time) error {
	idNum, err := id.Int64()
	if err != nil {
		return fmt.Errorf("resolving tenant id: %w", err)
	}
	_, err = s.db.Exec(ctx, `UPDATE tenants SET overage_since = $1 WHERE id = $2 AND overage_since IS NULL`, at, idNum)
	if err != nil {
		return apperr.Transient("db_set_overage_since", err)
	}
	return nil
}

// ClearOverageSince resets the clock once a tenant is back within its plan
// limits or has been suspended for sustained overage.
func (s *Store) ClearOverageSince(ctx context.Context, id tenant.ID) error {
	idNum, err := id.Int64()
	if err != nil {
		return fmt.Errorf("resolving tenant id: %w", err)
	}
	_, err = s.db.Exec(ctx, `UPDATE tenants SET overage_since = NULL WHERE id = $1`, idNum)
	if err != nil {
		return apperr.Transient("db_clear_overage_since", err)
	}
	return nil
}

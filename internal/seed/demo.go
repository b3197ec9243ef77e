package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/rbac"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// RunDemo provisions "acme" (via Run) and a second tenant, "globex", with a
// fuller illustrative dataset: departments, employees, a current
// usage period, and a couple of resolved/firing alerts — enough for the
// operator dashboard to show something other than zeros. It is destructive
// for globex: existing rows are dropped and recreated on every run.
func RunDemo(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if err := Run(ctx, pool, logger); err != nil {
		return fmt.Errorf("seeding acme: %w", err)
	}

	var acmeID int64
	if err := pool.QueryRow(ctx, `SELECT id FROM tenants WHERE domain = $1`, "acme").Scan(&acmeID); err != nil {
		return fmt.Errorf("looking up acme tenant: %w", err)
	}
	if err := seedOrgChart(ctx, pool, tenant.IDFromInt64(acmeID), logger, "acme"); err != nil {
		return err
	}

	var existingGlobex int64
	if err := pool.QueryRow(ctx, `SELECT id FROM tenants WHERE domain = $1`, "globex").Scan(&existingGlobex); err == nil {
		logger.Info("seed-demo: dropping existing tenant 'globex'", "tenant_id", existingGlobex)
		if err := hardDeleteDemoTenant(ctx, pool, existingGlobex); err != nil {
			return fmt.Errorf("dropping globex tenant: %w", err)
		}
	}

	var growthPlanID string
	if err := pool.QueryRow(ctx, `SELECT id FROM plans WHERE name = 'Growth'`).Scan(&growthPlanID); err != nil {
		return fmt.Errorf("looking up Growth plan: %w", err)
	}

	var globexIDRaw int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO tenants (name, domain, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, now(), now()) RETURNING id`,
		"Globex Corporation", "globex", tenant.StatusActive,
	).Scan(&globexIDRaw); err != nil {
		return fmt.Errorf("creating globex tenant: %w", err)
	}
	globexID := tenant.IDFromInt64(globexIDRaw)
	logger.Info("seed-demo: created tenant", "tenant_id", globexID, "domain", "globex")

	if _, err := pool.Exec(ctx,
		`INSERT INTO subscriptions (tenant_id, plan_id, status, price_snapshot, current_period_start, current_period_end, auto_renew)
		 VALUES ($1, $2, $3, $4, now() - interval '10 days', now() + interval '20 days', true)`,
		globexIDRaw, growthPlanID, "active", 14900,
	); err != nil {
		return fmt.Errorf("assigning globex subscription: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DevAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing globex admin password: %w", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO users (tenant_id, email, name, role, password_hash, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, true, now())`,
		globexIDRaw, "admin@globex.example.com", "Globex Admin", auth.RoleAdmin, string(hash),
	); err != nil {
		return fmt.Errorf("creating globex admin user: %w", err)
	}

	scope := isolation.New(pool, globexID)
	permStore := rbac.NewStore()
	for _, p := range rbac.DefaultPermissions(globexID) {
		if _, err := permStore.Upsert(ctx, scope, p); err != nil {
			return fmt.Errorf("seeding globex permission %s/%s: %w", p.RoleName, p.PagePath, err)
		}
	}

	if err := seedOrgChart(ctx, pool, globexID, logger, "globex"); err != nil {
		return err
	}

	// Globex is deliberately pushed close to its employee cap so the usage
	// dashboard and overage checker both have something to show.
	if _, err := pool.Exec(ctx,
		`INSERT INTO usage_metrics (tenant_id, period_start, employee_count, user_count, api_request_count,
		                            api_request_count_today, last_api_request_date, storage_bytes_used, feature_usage, last_updated)
		 VALUES ($1, date_trunc('month', now()), 240, 9, 182340, 4120, now(), 48318382080, '{"csv_export":312,"sso_login":58}'::jsonb, now())
		 ON CONFLICT (tenant_id, period_start) DO UPDATE SET employee_count = EXCLUDED.employee_count,
		     api_request_count = EXCLUDED.api_request_count, storage_bytes_used = EXCLUDED.storage_bytes_used`,
		globexIDRaw,
	); err != nil {
		return fmt.Errorf("seeding globex usage metrics: %w", err)
	}

	if _, err := pool.Exec(ctx,
		`INSERT INTO alerts (tenant_id, kind, severity, message, status, created_at)
		 VALUES
		   ($1, 'usage_warning', 'warning', 'employee count is at 96% of plan limit', 'firing', now() - interval '2 hours'),
		   ($1, 'payment_failed', 'major', 'card declined on latest invoice, retrying', 'resolved', now() - interval '3 days')`,
		globexIDRaw,
	); err != nil {
		return fmt.Errorf("seeding globex alerts: %w", err)
	}

	logger.Info("seed-demo: completed successfully", "tenants", []string{"acme", "globex"})
	return nil
}

// seedOrgChart creates a small department/employee tree for one tenant:
// three departments and five employees, no positions. Every tenant gets the
// same set.
func seedOrgChart(ctx context.Context, pool *pgxpool.Pool, id tenant.ID, logger *slog.Logger, label string) error {
	idNum, err := id.Int64()
	if err != nil {
		return err
	}

	departments := []string{"Engineering", "People Operations", "Sales"}
	deptIDs := make(map[string]uuid.UUID, len(departments))
	for _, name := range departments {
		var deptID uuid.UUID
		if err := pool.QueryRow(ctx,
			`INSERT INTO departments (tenant_id, name, created_at) VALUES ($1, $2, now()) RETURNING id`,
			idNum, name,
		).Scan(&deptID); err != nil {
			return fmt.Errorf("seeding department %q for %s: %w", name, label, err)
		}
		deptIDs[name] = deptID
	}

	type employeeSpec struct {
		externalID, fullName, email, department string
	}
	employees := []employeeSpec{
		{"EMP-001", "Alice Hartmann", "alice@" + label + ".example.com", "Engineering"},
		{"EMP-002", "Bob Mitchell", "bob@" + label + ".example.com", "Engineering"},
		{"EMP-003", "Chandra Patel", "chandra@" + label + ".example.com", "People Operations"},
		{"EMP-004", "Diana Krueger", "diana@" + label + ".example.com", "Sales"},
		{"EMP-005", "Enzo Rossi", "enzo@" + label + ".example.com", "Sales"},
	}
	for _, e := range employees {
		deptID := deptIDs[e.department]
		if _, err := pool.Exec(ctx,
			`INSERT INTO employees (tenant_id, employee_id, full_name, email, department_id, is_active, created_at)
			 VALUES ($1, $2, $3, $4, $5, true, now())`,
			idNum, e.externalID, e.fullName, e.email, deptID,
		); err != nil {
			return fmt.Errorf("seeding employee %q for %s: %w", e.fullName, label, err)
		}
	}
	logger.Info("seed-demo: seeded org chart", "tenant", label, "departments", len(departments), "employees", len(employees))
	return nil
}

// hardDeleteDemoTenant removes a previously seeded demo tenant and every
// row it owns, mirroring lifecycle.Manager.HardDelete's child-before-parent
// order without going through the full lifecycle state machine (the demo
// tenant may be in any status when RunDemo is re-run).
func hardDeleteDemoTenant(ctx context.Context, pool *pgxpool.Pool, tenantIDRaw int64) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	childTables := []string{
		"usage_metrics", "lifecycle_events", "role_permissions",
		"subscriptions", "personal_access_tokens", "api_keys",
		"alerts", "employees", "positions", "departments", "users",
	}
	for _, table := range childTables {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, table), tenantIDRaw); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, tenantIDRaw); err != nil {
		return fmt.Errorf("deleting tenant row: %w", err)
	}
	return tx.Commit(ctx)
}

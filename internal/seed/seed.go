// Package seed populates a freshly migrated database with the minimum data
// the service needs to run: a development tenant, an admin login, and the
// default permission matrix. RunDemo (demo.go) builds on top of this with a
// larger illustrative dataset.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/rbac"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// DevAdminPassword is the password seeded for the development admin user.
// It is only ever written by the seed command and must never reach a
// production database.
const DevAdminPassword = "hrctl-dev-admin-do-not-use-in-production"

// Run provisions the "acme" development tenant with an admin login and the
// default role permission matrix. It is idempotent: if the tenant already
// exists it logs a message and returns nil.
func Run(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	var existing int64
	err := pool.QueryRow(ctx, `SELECT id FROM tenants WHERE domain = $1`, "acme").Scan(&existing)
	if err == nil {
		logger.Info("seed: tenant 'acme' already exists, skipping", "tenant_id", existing)
		return nil
	}

	var planID string
	if err := pool.QueryRow(ctx, `SELECT id FROM plans WHERE monthly_price = 0 AND visible = true ORDER BY created_at LIMIT 1`).Scan(&planID); err != nil {
		return fmt.Errorf("looking up free plan (has migrations run?): %w", err)
	}

	var tenantIDRaw int64
	err = pool.QueryRow(ctx,
		`INSERT INTO tenants (name, domain, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, now(), now()) RETURNING id`,
		"Acme Corp", "acme", tenant.StatusActive,
	).Scan(&tenantIDRaw)
	if err != nil {
		return fmt.Errorf("creating seed tenant: %w", err)
	}
	id := tenant.IDFromInt64(tenantIDRaw)
	logger.Info("seed: created tenant", "tenant_id", id, "domain", "acme")

	if _, err := pool.Exec(ctx,
		`INSERT INTO subscriptions (tenant_id, plan_id, status, price_snapshot, current_period_start, current_period_end, auto_renew)
		 VALUES ($1, $2, $3, 0, now(), now() + interval '30 days', true)`,
		tenantIDRaw, planID, "active",
	); err != nil {
		return fmt.Errorf("assigning seed subscription: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DevAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing seed admin password: %w", err)
	}
	var adminID string
	if err := pool.QueryRow(ctx,
		`INSERT INTO users (tenant_id, email, name, role, password_hash, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, true, now()) RETURNING id`,
		tenantIDRaw, "admin@acme.example.com", "Acme Admin", auth.RoleAdmin, string(hash),
	).Scan(&adminID); err != nil {
		return fmt.Errorf("creating seed admin user: %w", err)
	}
	logger.Info("seed: created admin user", "email", "admin@acme.example.com", "password", DevAdminPassword)

	scope := isolation.New(pool, id)
	permStore := rbac.NewStore()
	for _, p := range rbac.DefaultPermissions(id) {
		if _, err := permStore.Upsert(ctx, scope, p); err != nil {
			return fmt.Errorf("seeding permission %s/%s: %w", p.RoleName, p.PagePath, err)
		}
	}
	logger.Info("seed: seeded default role permissions", "tenant_id", id)

	logger.Info("seed: completed successfully", "tenant", "acme", "admin_email", "admin@acme.example.com")
	return nil
}

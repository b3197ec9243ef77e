package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/auth"
	"github.com/wisbric/hrctl/pkg/hrdomain"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/notify"
	"github.com/wisbric/hrctl/pkg/plan"
	"github.com/wisbric/hrctl/pkg/rbac"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Manager is the only mutator of a tenant's status. It loads the tenant row
// with its version column for optimistic concurrency and retries once on a
// version conflict.
type Manager struct {
	pool           *pgxpool.Pool
	plans          *plan.Catalog
	notifier       notify.Notifier
	invitations    notify.InvitationDispatcher
	gracePeriod    time.Duration
	retentionDays  time.Duration
	logger         *slog.Logger
}

// NewManager creates a lifecycle Manager. plans is set afterward via
// SetCatalog since Catalog's constructor in turn needs this Manager as its
// PlanChangeRecorder — a two-phase wiring step, not an import cycle.
func NewManager(pool *pgxpool.Pool, notifier notify.Notifier, invitations notify.InvitationDispatcher, gracePeriodDays, retentionDays int, logger *slog.Logger) *Manager {
	return &Manager{
		pool:          pool,
		notifier:      notifier,
		invitations:   invitations,
		gracePeriod:   time.Duration(gracePeriodDays) * 24 * time.Hour,
		retentionDays: time.Duration(retentionDays) * 24 * time.Hour,
		logger:        logger,
	}
}

// SetCatalog completes two-phase wiring: Manager.Provision needs a Catalog
// to assign the free plan, and Catalog.Switch needs a Manager to record
// plan-change events.
func (m *Manager) SetCatalog(plans *plan.Catalog) { m.plans = plans }

// tenantRow is the minimal set of Tenant columns the lifecycle manager
// needs to read and write.
type tenantRow struct {
	ID      tenant.ID
	Status  Status
	Version int64
}

func (m *Manager) loadTenant(ctx context.Context, tx pgx.Tx, id tenant.ID) (tenantRow, error) {
	idNum, err := id.Int64()
	if err != nil {
		return tenantRow{}, apperr.Validation("invalid_tenant_id", err.Error())
	}

	var t tenantRow
	var idRaw int64
	err = tx.QueryRow(ctx, `SELECT id, status, version FROM tenants WHERE id = $1 FOR UPDATE`, idNum).
		Scan(&idRaw, &t.Status, &t.Version)
	t.ID = tenant.IDFromInt64(idRaw)
	if err != nil {
		return tenantRow{}, apperr.NotFound("tenant_not_found", "tenant not found")
	}
	return t, nil
}

// Transition moves a tenant from its current status to `to`, validating the
// edge against the adjacency map and recording a LifecycleEvent in the same
// transaction. It retries once if another writer changes the version
// between read and write.
func (m *Manager) Transition(ctx context.Context, id tenant.ID, to Status, reason, triggeredBy string, metadata map[string]any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		err := m.transitionOnce(ctx, id, to, reason, triggeredBy, metadata)
		if err == nil {
			return nil
		}
		if !isVersionConflict(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func isVersionConflict(err error) bool {
	ae, ok := apperr.As(err)
	return ok && ae.Code == "version_conflict"
}

func (m *Manager) transitionOnce(ctx context.Context, id tenant.ID, to Status, reason, triggeredBy string, metadata map[string]any) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return apperr.Transient("db_begin", err)
	}
	defer tx.Rollback(ctx)

	t, err := m.loadTenant(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := validateTransition(t.Status, to); err != nil {
		return err
	}

	idNum, err := id.Int64()
	if err != nil {
		return apperr.Validation("invalid_tenant_id", err.Error())
	}

	tag, err := tx.Exec(ctx,
		`UPDATE tenants SET status = $1, version = version + 1, updated_at = now() WHERE id = $2 AND version = $3`,
		to, idNum, t.Version)
	if err != nil {
		return apperr.Transient("db_update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.CategoryConflict, "version_conflict", "tenant was modified concurrently")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO lifecycle_events (tenant_id, from_status, to_status, reason, triggered_by, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		idNum, t.Status, to, reason, triggeredBy, metadataJSON(metadata),
	); err != nil {
		return apperr.Transient("db_insert_event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Transient("db_commit", err)
	}

	m.logger.Info("tenant lifecycle transition", "tenant_id", id, "from", t.Status, "to", to, "reason", reason)
	return nil
}

// Suspend moves an Active tenant to Suspended.
func (m *Manager) Suspend(ctx context.Context, id tenant.ID, reason, triggeredBy string) error {
	if err := m.Transition(ctx, id, StatusSuspended, reason, triggeredBy, nil); err != nil {
		return err
	}
	m.notifier.Notify(ctx, notify.Message{TenantID: id, Kind: notify.KindSuspension, Text: fmt.Sprintf("tenant %s suspended: %s", id, reason)})
	return nil
}

// Resume moves a Suspended tenant back to Active.
func (m *Manager) Resume(ctx context.Context, id tenant.ID, reason, triggeredBy string) error {
	return m.Transition(ctx, id, StatusActive, reason, triggeredBy, nil)
}

// Cancel moves an Active or Suspended tenant to Cancelled and starts the
// grace period clock.
func (m *Manager) Cancel(ctx context.Context, id tenant.ID, reason, triggeredBy string) error {
	if err := m.Transition(ctx, id, StatusCancelled, reason, triggeredBy, nil); err != nil {
		return err
	}
	idNum, err := id.Int64()
	if err != nil {
		return apperr.Validation("invalid_tenant_id", err.Error())
	}

	graceEnd := time.Now().Add(m.gracePeriod)
	_, err = m.pool.Exec(ctx, `UPDATE tenants SET grace_period_ends_at = $1 WHERE id = $2`, graceEnd, idNum)
	if err != nil {
		return apperr.Transient("db_update_grace", err)
	}
	m.notifier.Notify(ctx, notify.Message{TenantID: id, Kind: notify.KindCancellation, Text: fmt.Sprintf("tenant %s cancelled, grace period ends %s", id, graceEnd.Format(time.RFC3339))})
	return nil
}

// ScheduleDeletion moves a Cancelled tenant (whose grace period has
// elapsed) to PendingDeletion and sets the retention-window deadline.
func (m *Manager) ScheduleDeletion(ctx context.Context, id tenant.ID, triggeredBy string) error {
	if err := m.Transition(ctx, id, StatusPendingDeletion, "grace period elapsed", triggeredBy, nil); err != nil {
		return err
	}
	idNum, err := id.Int64()
	if err != nil {
		return apperr.Validation("invalid_tenant_id", err.Error())
	}

	deleteAt := time.Now().Add(m.retentionDays)
	_, err = m.pool.Exec(ctx, `UPDATE tenants SET scheduled_deletion_at = $1 WHERE id = $2`, deleteAt, idNum)
	if err != nil {
		return apperr.Transient("db_update_deletion_schedule", err)
	}
	return nil
}

// HardDelete performs the ordered child-before-parent delete of every row
// owned by the tenant, then deletes the tenant row itself. Called only by
// DeletionSweeper once the retention window has elapsed.
func (m *Manager) HardDelete(ctx context.Context, id tenant.ID) error {
	idNum, err := id.Int64()
	if err != nil {
		return apperr.Validation("invalid_tenant_id", err.Error())
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return apperr.Transient("db_begin", err)
	}
	defer tx.Rollback(ctx)

	// Children first: leaf tables referencing tenant_id before parent rows.
	// webhook_events and audit_log are platform-owned (no tenant_id column
	// on webhook_events; audit_log's tenant_id is nullable and kept for
	// operator history even after the tenant is gone) and are not touched here.
	childTables := []string{
		"usage_metrics", "lifecycle_events", "role_permissions",
		"subscriptions", "personal_access_tokens", "api_keys",
		"alerts", "employees", "positions", "departments", "users",
	}
	for _, table := range childTables {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1`, table), idNum); err != nil {
			return apperr.Transient("db_delete_"+table, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, idNum); err != nil {
		return apperr.Transient("db_delete_tenant", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Transient("db_commit", err)
	}
	m.logger.Info("tenant hard deleted", "tenant_id", id)
	return nil
}

// RetryProvisioning moves a tenant stuck in ProvisioningFailed back to
// Provisioning. It does not re-run any of Provision's steps.
func (m *Manager) RetryProvisioning(ctx context.Context, id tenant.ID) error {
	return m.Transition(ctx, id, StatusProvisioning, "operator retry", "operator", nil)
}

// RecordPlanChange logs a plan switch as a lifecycle event without moving
// the tenant's status — it satisfies plan.PlanChangeRecorder so C4 can
// record Upgraded/Downgraded events through C3 without C3 importing C4.
func (m *Manager) RecordPlanChange(ctx context.Context, id tenant.ID, direction, reason string) error {
	idNum, err := id.Int64()
	if err != nil {
		return apperr.Validation("invalid_tenant_id", err.Error())
	}

	var status Status
	if err := m.pool.QueryRow(ctx, `SELECT status FROM tenants WHERE id = $1`, idNum).Scan(&status); err != nil {
		return apperr.NotFound("tenant_not_found", "tenant not found")
	}
	_, err = m.pool.Exec(ctx,
		`INSERT INTO lifecycle_events (tenant_id, from_status, to_status, reason, triggered_by, metadata, occurred_at)
		 VALUES ($1, $2, $2, $3, $4, $5, now())`,
		idNum, status, reason, "plan_catalog", metadataJSON(map[string]any{"plan_change": direction}))
	if err != nil {
		return apperr.Transient("db_insert_event", err)
	}
	return nil
}

// Provision runs the full tenant signup workflow: validate the request,
// dedupe on idempotency token, create the tenant row, assign the free plan,
// create the admin identity, seed default permissions, and dispatch the
// invitation.
func (m *Manager) Provision(ctx context.Context, req ProvisionRequest) (tenant.ID, error) {
	if req.IdempotencyToken != "" {
		var existing int64
		err := m.pool.QueryRow(ctx, `SELECT id FROM tenants WHERE idempotency_token = $1`, req.IdempotencyToken).Scan(&existing)
		if err == nil {
			return tenant.IDFromInt64(existing), nil
		}
	}

	var newID int64
	err := m.pool.QueryRow(ctx,
		`INSERT INTO tenants (name, domain, status, idempotency_token, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, now(), now()) RETURNING id`,
		req.Name, req.Domain, StatusProvisioning, nullIfEmpty(req.IdempotencyToken),
	).Scan(&newID)
	if err != nil {
		return "", apperr.Conflict("tenant_conflict", "a tenant with this name or domain already exists")
	}
	id := tenant.IDFromInt64(newID)

	if err := m.seedTenantData(ctx, id); err != nil {
		_ = m.Transition(ctx, id, StatusProvisioningFailed, err.Error(), "system", nil)
		return id, err
	}

	if err := m.plans.AssignFreePlan(ctx, id, req.TrialDays); err != nil {
		_ = m.Transition(ctx, id, StatusProvisioningFailed, err.Error(), "system", nil)
		return id, err
	}

	resetToken, err := m.createAdminIdentity(ctx, id, req.AdminEmail)
	if err != nil {
		_ = m.Transition(ctx, id, StatusProvisioningFailed, err.Error(), "system", nil)
		return id, err
	}

	m.invitations.DispatchInvitation(ctx, req.AdminEmail, id, resetToken)

	if err := m.Transition(ctx, id, StatusActive, "provisioning completed", "system", nil); err != nil {
		return id, err
	}

	return id, nil
}

// seedTenantData runs step 3 of the provisioning workflow in a single
// transaction: one default "General" department and the default
// role-permission matrix. No module catalog and no positions are seeded.
func (m *Manager) seedTenantData(ctx context.Context, id tenant.ID) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return apperr.Transient("db_begin", err)
	}
	defer tx.Rollback(ctx)

	scope := isolation.New(tx, id)

	deptStore := hrdomain.NewDepartmentStore()
	if _, err := deptStore.Create(ctx, scope, hrdomain.Department{Name: "General"}); err != nil {
		return fmt.Errorf("seeding default department: %w", err)
	}

	permStore := rbac.NewStore()
	for _, p := range rbac.DefaultPermissions(id) {
		if _, err := permStore.Upsert(ctx, scope, p); err != nil {
			return fmt.Errorf("seeding default permission %s/%s: %w", p.RoleName, p.PagePath, err)
		}
	}

	return tx.Commit(ctx)
}

// createAdminIdentity creates the
// tenant admin identity, assign it the Admin role, stamp its tenant_id, and
// issue a password-reset token. The identity is given a randomly generated
// password meeting the minimum password policy rather than no password at
// all, so a stolen-but-unused row is never login-able without the reset
// token. Email is unique across the whole users table (idx_users_email), so
// an email already used in any tenant makes this insert fail as a conflict.
func (m *Manager) createAdminIdentity(ctx context.Context, id tenant.ID, email string) (resetToken string, err error) {
	randomPassword, err := randomToken(24)
	if err != nil {
		return "", apperr.Internal("password_generation_failed", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(randomPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Internal("password_hash_failed", err)
	}
	resetToken, err = randomToken(32)
	if err != nil {
		return "", apperr.Internal("reset_token_generation_failed", err)
	}

	idNum, err := id.Int64()
	if err != nil {
		return "", apperr.Validation("invalid_tenant_id", err.Error())
	}

	_, err = m.pool.Exec(ctx,
		`INSERT INTO users (tenant_id, email, name, role, password_hash, reset_token, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, true, now())`,
		idNum, email, adminDisplayName(email), auth.RoleAdmin, string(hash), resetToken,
	)
	if err != nil {
		return "", apperr.Conflict("admin_identity_conflict", fmt.Sprintf("could not create admin identity for %s: %v", email, err))
	}
	return resetToken, nil
}

func adminDisplayName(email string) string {
	for i, c := range email {
		if c == '@' {
			return email[:i]
		}
	}
	return email
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func metadataJSON(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

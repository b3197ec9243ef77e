package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/lifecycle"
	"github.com/wisbric/hrctl/pkg/notify"
	"github.com/wisbric/hrctl/pkg/plan"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// overageGraceWindow is how long a tenant may remain over a hard limit
// before the scanner asks the lifecycle manager to suspend it.
const overageGraceWindow = 7 * 24 * time.Hour

// Checker combines a tenant's live usage with its plan caps.
type Checker struct {
	store   *Store
	catalog *plan.Catalog
}

func NewChecker(store *Store, catalog *plan.Catalog) *Checker {
	return &Checker{store: store, catalog: catalog}
}

// CheckLimit evaluates one dimension of a tenant's current usage against
// its plan's cap.
func (c *Checker) CheckLimit(ctx context.Context, scope *isolation.Scope, id tenant.ID, dim Dimension) (LimitResult, error) {
	m, err := c.store.CurrentPeriod(ctx, scope)
	if err != nil {
		return LimitResult{}, err
	}
	_, p, err := c.catalog.ActiveSubscription(ctx, id)
	if err != nil {
		return LimitResult{}, err
	}

	switch dim {
	case DimensionEmployees:
		return checkLimit(dim, int64(m.EmployeeCount), int64(p.MaxEmployees)), nil
	case DimensionUsers:
		return checkLimit(dim, int64(m.UserCount), int64(p.MaxUsers)), nil
	case DimensionStorage:
		return checkLimit(dim, m.StorageBytesUsed, p.MaxStorageBytes), nil
	default:
		return LimitResult{}, fmt.Errorf("no plan cap defined for dimension %q", dim)
	}
}

// Scanner is the background worker of C6: per Active tenant, evaluate all
// limits, notify on overage/near-limit, and suspend tenants left over a
// hard limit past the grace window. Runs on the same ticker-driven poll
// loop shape as the other background workers in this service. The overage
// clock lives in the tenants table (Store.OverageSince et al.), not in
// process memory, so a restart mid-grace-window resumes rather than resets.
type Scanner struct {
	store     *Store
	checker   *Checker
	lifecycle *lifecycle.Manager
	notifier  notify.Notifier
	interval  time.Duration
	logger    *slog.Logger
}

func NewScanner(store *Store, checker *Checker, lm *lifecycle.Manager, notifier notify.Notifier, interval time.Duration, logger *slog.Logger) *Scanner {
	return &Scanner{
		store: store, checker: checker, lifecycle: lm, notifier: notifier,
		interval: interval, logger: logger,
	}
}

func (s *Scanner) Run(ctx context.Context) error {
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

// EvaluateNow forces an immediate evaluation of one tenant outside the
// ticker loop, for the operator's manual rescan endpoint.
func (s *Scanner) EvaluateNow(ctx context.Context, scope *isolation.Scope, id tenant.ID) error {
	m, err := s.store.CurrentPeriod(ctx, scope)
	if err != nil {
		return err
	}
	m.TenantID = id
	s.evaluateTenant(ctx, m)
	return nil
}

func (s *Scanner) tick(ctx context.Context) {
	period := periodStart(time.Now())
	metrics, err := s.store.AllActiveTenantMetrics(ctx, period)
	if err != nil {
		s.logger.Error("listing active tenant metrics for usage scan", "error", err)
		return
	}
	for _, m := range metrics {
		s.evaluateTenant(ctx, m)
	}
}

func (s *Scanner) evaluateTenant(ctx context.Context, m Metric) {
	_, p, err := s.checker.catalog.ActiveSubscription(ctx, m.TenantID)
	if err != nil {
		s.logger.Warn("no active subscription, skipping usage evaluation", "tenant_id", m.TenantID, "error", err)
		return
	}

	results := []LimitResult{
		checkLimit(DimensionEmployees, int64(m.EmployeeCount), int64(p.MaxEmployees)),
		checkLimit(DimensionUsers, int64(m.UserCount), int64(p.MaxUsers)),
		checkLimit(DimensionStorage, m.StorageBytesUsed, p.MaxStorageBytes),
	}

	anyOverLimit := false
	for _, res := range results {
		if res.OverLimit {
			anyOverLimit = true
			severity := "medium"
			if res.Ratio > 1.5 {
				severity = "high"
			}
			s.notifier.Notify(ctx, notify.Message{TenantID: m.TenantID, Kind: notify.KindOverage,
				Text: fmt.Sprintf("%s usage %d exceeds plan limit %d (severity=%s)", res.Dimension, res.Used, res.Limit, severity)})
		} else if res.NearLimit {
			s.notifier.Notify(ctx, notify.Message{TenantID: m.TenantID, Kind: notify.KindUsageWarning,
				Text: fmt.Sprintf("%s usage at %.0f%% of plan limit", res.Dimension, res.Ratio*100)})
		}
	}

	if !anyOverLimit {
		if err := s.store.ClearOverageSince(ctx, m.TenantID); err != nil {
			s.logger.Error("clearing overage clock", "tenant_id", m.TenantID, "error", err)
		}
		return
	}

	since, err := s.store.OverageSince(ctx, m.TenantID)
	if err != nil {
		s.logger.Error("reading overage clock", "tenant_id", m.TenantID, "error", err)
		return
	}
	if since == nil {
		if err := s.store.SetOverageSince(ctx, m.TenantID, time.Now()); err != nil {
			s.logger.Error("starting overage clock", "tenant_id", m.TenantID, "error", err)
		}
		return
	}
	if time.Since(*since) >= overageGraceWindow {
		if err := s.lifecycle.Suspend(ctx, m.TenantID, "usage remained over plan limit past the grace window", "usage_scanner"); err != nil {
			s.logger.Error("suspending tenant for sustained overage", "tenant_id", m.TenantID, "error", err)
			return
		}
		if err := s.store.ClearOverageSince(ctx, m.TenantID); err != nil {
			s.logger.Error("clearing overage clock after suspension", "tenant_id", m.TenantID, "error", err)
		}
	}
}

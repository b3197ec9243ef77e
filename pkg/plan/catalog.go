package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/db"
	"github.com/wisbric/hrctl/pkg/isolation"
	"github.com/wisbric/hrctl/pkg/notify"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// PlanChangeRecorder records the Upgraded/Downgraded lifecycle event a plan
// switch produces. Implemented by pkg/lifecycle.Manager; declared here as a
// narrow interface to avoid an import cycle (lifecycle already depends on
// plan for AssignFreePlan during provisioning).
type PlanChangeRecorder interface {
	RecordPlanChange(ctx context.Context, tenantID tenant.ID, direction, reason string) error
}

// Catalog is the public API of C4: plan lookups, the tenant's active
// subscription, feature gating, and plan switches.
type Catalog struct {
	store    *Store
	cache    *Cache
	notifier notify.Notifier
	recorder PlanChangeRecorder
}

func NewCatalog(dbtx db.DBTX, cache *Cache, notifier notify.Notifier, recorder PlanChangeRecorder) *Catalog {
	return &Catalog{store: NewStore(dbtx), cache: cache, notifier: notifier, recorder: recorder}
}

// ActiveSubscription returns the tenant's current subscription and plan,
// using the cache when warm.
func (c *Catalog) ActiveSubscription(ctx context.Context, id tenant.ID) (Subscription, Plan, error) {
	scope := isolation.New(c.store.db, id)
	sub, err := c.store.ActiveSubscription(ctx, scope)
	if err != nil {
		return Subscription{}, Plan{}, fmt.Errorf("loading active subscription: %w", err)
	}
	p, err := c.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return Subscription{}, Plan{}, fmt.Errorf("loading plan: %w", err)
	}
	c.cache.Set(ctx, id, sub.Status, p)
	return sub, p, nil
}

// HasFeature reports whether the tenant's current subscription is in an
// entitled status (Active or Trialing) and the plan carries the feature.
func (c *Catalog) HasFeature(ctx context.Context, id tenant.ID, key string) (bool, error) {
	if snap, ok := c.cache.Get(ctx, id); ok {
		return snap.Status.isNonTerminal() && snap.Status != SubStatusPastDue && snap.Plan.HasFeature(key), nil
	}
	sub, p, err := c.ActiveSubscription(ctx, id)
	if err != nil {
		return false, err
	}
	entitled := sub.Status == SubStatusActive || sub.Status == SubStatusTrialing
	return entitled && p.HasFeature(key), nil
}

// Switch moves a tenant from its current plan to newPlanID: it updates the
// subscription row, then the tenant's mirrored max_employees cap (two
// separate statements, not one transaction), records an Upgraded/Downgraded
// lifecycle event (direction from comparing monthly prices), invalidates the
// cache, and sends a plan-change notification through the operator notifier.
func (c *Catalog) Switch(ctx context.Context, id tenant.ID, newPlanID uuid.UUID) error {
	scope := isolation.New(c.store.db, id)

	current, currentPlan, err := c.ActiveSubscription(ctx, id)
	if err != nil {
		return err
	}
	newPlan, err := c.store.GetPlan(ctx, newPlanID)
	if err != nil {
		return apperr.NotFound("plan_not_found", "target plan does not exist")
	}

	if err := c.store.UpdateSubscriptionPlan(ctx, scope, current.ID, newPlanID, newPlan.EffectivePrice(PeriodMonthly)); err != nil {
		return err
	}
	if err := c.store.UpdateTenantMaxEmployees(ctx, id, newPlan.MaxEmployees); err != nil {
		return err
	}

	direction := "upgraded"
	if newPlan.MonthlyPrice < currentPlan.MonthlyPrice {
		direction = "downgraded"
	}
	if c.recorder != nil {
		if err := c.recorder.RecordPlanChange(ctx, id, direction, fmt.Sprintf("switched from %s to %s", currentPlan.Name, newPlan.Name)); err != nil {
			return fmt.Errorf("recording plan change event: %w", err)
		}
	}

	c.cache.InvalidateTenant(ctx, id)
	c.notifier.Notify(ctx, notify.Message{TenantID: id, Kind: notify.KindPlanChange, Text: fmt.Sprintf("plan %s to %s", direction, newPlan.Name)})
	return nil
}

// AssignFreePlan gives a newly provisioned tenant a trialing subscription
// to the zero-cost plan, called from lifecycle.Manager.Provision's step 4.
func (c *Catalog) AssignFreePlan(ctx context.Context, id tenant.ID, trialDays int) error {
	free, err := c.store.FreePlan(ctx)
	if err != nil {
		return apperr.Internal("no_free_plan_configured", err)
	}
	if trialDays <= 0 {
		trialDays = free.TrialDays
	}

	scope := isolation.New(c.store.db, id)
	now := time.Now()
	trialEnd := now.AddDate(0, 0, trialDays)
	_, err = c.store.CreateSubscription(ctx, scope, Subscription{
		PlanID:             free.ID,
		Status:             SubStatusTrialing,
		PriceSnapshot:      0,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnd,
		TrialEnd:           &trialEnd,
		AutoRenew:          false,
	})
	if err != nil {
		return fmt.Errorf("assigning free plan: %w", err)
	}
	if err := c.store.UpdateTenantMaxEmployees(ctx, id, free.MaxEmployees); err != nil {
		return err
	}
	c.cache.InvalidateTenant(ctx, id)
	return nil
}

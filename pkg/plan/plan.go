// Package plan implements the subscription and plan catalog (C4): the set
// of purchasable plans, a tenant's current subscription, feature-gate
// checks, and a cache fronting the database (Redis entries with a TTL, plus
// an in-process fallback map).
package plan

import (
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/pkg/tenant"
)

// BillingPeriod selects which of a Plan's three prices applies.
type BillingPeriod string

const (
	PeriodMonthly   BillingPeriod = "monthly"
	PeriodQuarterly BillingPeriod = "quarterly"
	PeriodYearly    BillingPeriod = "yearly"
)

// Feature is a single named plan entitlement. Type distinguishes how Value
// should be interpreted ("bool", "int", "string").
type Feature struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Plan is a purchasable subscription tier.
type Plan struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	MonthlyPrice    int64     `json:"monthly_price"`   // minor currency units
	QuarterlyPrice  int64     `json:"quarterly_price"` // 0 => derive from MonthlyPrice
	YearlyPrice     int64     `json:"yearly_price"`    // 0 => derive from MonthlyPrice
	Currency        string    `json:"currency"`
	MaxEmployees    int       `json:"max_employees"`
	MaxUsers        int       `json:"max_users"`
	MaxStorageBytes int64     `json:"max_storage_bytes"`
	TrialDays       int       `json:"trial_days"`
	Visible         bool      `json:"visible"`
	Features        []Feature `json:"features"`
}

// EffectivePrice returns the price for the given billing period, falling
// back to the monthly price multiplied out when the tiered price is unset
// (quarterly = monthly×3, yearly = monthly×12).
func (p Plan) EffectivePrice(period BillingPeriod) int64 {
	switch period {
	case PeriodQuarterly:
		if p.QuarterlyPrice > 0 {
			return p.QuarterlyPrice
		}
		return p.MonthlyPrice * 3
	case PeriodYearly:
		if p.YearlyPrice > 0 {
			return p.YearlyPrice
		}
		return p.MonthlyPrice * 12
	default:
		return p.MonthlyPrice
	}
}

// HasFeature reports whether the plan carries a truthy feature flag.
func (p Plan) HasFeature(key string) bool {
	for _, f := range p.Features {
		if f.Key != key {
			continue
		}
		switch f.Type {
		case "bool":
			return f.Value == "true"
		default:
			return f.Value != ""
		}
	}
	return false
}

// SubscriptionStatus mirrors the billing provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription binds a tenant to a plan for a billing period.
type Subscription struct {
	ID                  uuid.UUID          `json:"id"`
	TenantID             tenant.ID          `json:"tenant_id"`
	PlanID               uuid.UUID          `json:"plan_id"`
	Status               SubscriptionStatus `json:"status"`
	ExternalProviderID   string             `json:"external_provider_id,omitempty"`
	PriceSnapshot        int64              `json:"price_snapshot"`
	CurrentPeriodStart   time.Time          `json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	TrialEnd             *time.Time         `json:"trial_end,omitempty"`
	AutoRenew            bool               `json:"auto_renew"`
}

func (s Subscription) GetTenantID() tenant.ID { return s.TenantID }

// isNonTerminal reports whether a subscription status still counts toward
// the "at most one non-terminal subscription per tenant" invariant.
func (s SubscriptionStatus) isNonTerminal() bool {
	return s == SubStatusTrialing || s == SubStatusActive || s == SubStatusPastDue
}

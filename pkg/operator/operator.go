// Package operator implements the operator surface (C7): cross-tenant
// listing and detail views, the weighted dashboard, impersonation, and
// housekeeping actions, all gated on auth.RoleSuperAdmin and run through
// the audit writer.
package operator

import (
	"time"

	"github.com/wisbric/hrctl/pkg/lifecycle"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// TenantSummary is one row of ListTenants.
type TenantSummary struct {
	ID            tenant.ID       `json:"id"`
	Name          string          `json:"name"`
	Domain        string          `json:"domain"`
	Status        tenant.Status   `json:"status"`
	PlanName      string          `json:"plan_name"`
	EmployeeCount int             `json:"employee_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TenantDetail is the full operator-facing view of one tenant.
type TenantDetail struct {
	TenantSummary
	SubscriptionHistory []SubscriptionHistoryEntry `json:"subscription_history"`
	RecentEvents        []lifecycle.Event          `json:"recent_lifecycle_events"`
	UserCount           int                        `json:"user_count"`
	APIRequestCount     int64                      `json:"api_request_count_this_period"`
	StorageBytesUsed    int64                      `json:"storage_bytes_used"`
}

// SubscriptionHistoryEntry is a past or current subscription record shown
// on the tenant detail page.
type SubscriptionHistoryEntry struct {
	PlanName  string    `json:"plan_name"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// DashboardEntry is one tenant's row on the weighted-score dashboard.
type DashboardEntry struct {
	TenantID       tenant.ID `json:"tenant_id"`
	Name           string    `json:"name"`
	Score          float64   `json:"score"`
	EmployeeWeight float64   `json:"employee_weight"`
	APIWeight      float64   `json:"api_weight"`
	StorageWeight  float64   `json:"storage_weight"`
	AlertWeight    float64   `json:"alert_weight"`
}

// Dashboard is the cross-tenant operator dashboard response.
type Dashboard struct {
	TopTenants        []DashboardEntry `json:"top_tenants"`
	TotalTenants      int              `json:"total_tenants"`
	TotalEmployees    int64            `json:"total_employees"`
	TotalAPIRequests  int64            `json:"total_api_requests"`
	SeverityHistogram map[string]int   `json:"severity_histogram"`
}

// weight coefficients for the health dashboard score.
const (
	weightEmployees = 0.40
	weightAPI       = 0.30
	weightStorage   = 0.20
	weightAlerts    = 0.10
)

// score computes the weighted composite: 40% employees + 30%
// normalized API + 20% storage-GB + 10% alert weight.
func score(employeeNorm, apiNorm, storageGBNorm, alertNorm float64) float64 {
	return weightEmployees*employeeNorm + weightAPI*apiNorm + weightStorage*storageGBNorm + weightAlerts*alertNorm
}

// normalize scales a value into [0, 1] against the observed maximum,
// returning 0 when max is 0 to avoid a divide-by-zero for an empty set.
func normalize(value, max float64) float64 {
	if max <= 0 {
		return 0
	}
	ratio := value / max
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// Package usage implements usage metering (C6): per-tenant, per-period
// counters, limit checks against the tenant's plan, and a background
// scanner that raises overage alerts and 90%-warning notifications.
package usage

import (
	"time"

	"github.com/wisbric/hrctl/pkg/tenant"
)

// Metric is one tenant's usage row for a billing period (calendar month).
type Metric struct {
	TenantID              tenant.ID        `json:"tenant_id"`
	PeriodStart           time.Time        `json:"period_start"`
	EmployeeCount         int              `json:"employee_count"`
	UserCount             int              `json:"user_count"`
	APIRequestCount       int64            `json:"api_request_count"`
	APIRequestCountToday  int64            `json:"api_request_count_today"`
	LastAPIRequestDate    time.Time        `json:"last_api_request_date"`
	StorageBytesUsed      int64            `json:"storage_bytes_used"`
	FeatureUsage          map[string]int64 `json:"feature_usage"`
	LastUpdated           time.Time        `json:"last_updated"`
}

func (m Metric) GetTenantID() tenant.ID { return m.TenantID }

// Dimension is a countable resource a plan caps.
type Dimension string

const (
	DimensionEmployees   Dimension = "employees"
	DimensionUsers       Dimension = "users"
	DimensionStorage     Dimension = "storage"
	DimensionAPIRequests Dimension = "api_requests"
)

// LimitResult is the outcome of comparing a metric against its plan cap.
type LimitResult struct {
	Dimension   Dimension
	Used        int64
	Limit       int64
	Ratio       float64 // Used / Limit; 0 when Limit is 0 (unlimited)
	OverLimit   bool
	NearLimit   bool // >= 90% of limit
}

// periodStart truncates t to the first of its UTC month, the period key
// usage rows are bucketed on.
func periodStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func checkLimit(dim Dimension, used, limit int64) LimitResult {
	res := LimitResult{Dimension: dim, Used: used, Limit: limit}
	if limit <= 0 {
		return res // unlimited
	}
	res.Ratio = float64(used) / float64(limit)
	res.OverLimit = used > limit
	res.NearLimit = res.Ratio >= 0.9
	return res
}

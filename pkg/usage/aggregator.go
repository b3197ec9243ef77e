package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/wisbric/hrctl/internal/db"
)

// Totals is the cross-tenant sum of one period's usage. The operator
// dashboard's weighted score does not use it; operator.Store reads
// usage_metrics itself.
type Totals struct {
	PeriodStart     time.Time `json:"period_start"`
	TenantCount     int       `json:"tenant_count"`
	EmployeeCount   int64     `json:"employee_count"`
	APIRequestCount int64     `json:"api_request_count"`
	StorageBytes    int64     `json:"storage_bytes"`
}

// Aggregator computes cross-tenant totals and month-over-month deltas. No
// handler or worker in the service constructs one.
type Aggregator struct {
	db db.DBTX
}

func NewAggregator(dbtx db.DBTX) *Aggregator { return &Aggregator{db: dbtx} }

// CrossTenantTotals sums the current period's usage across every tenant.
func (a *Aggregator) CrossTenantTotals(ctx context.Context) (Totals, error) {
	return a.totalsForPeriod(ctx, periodStart(time.Now()))
}

func (a *Aggregator) totalsForPeriod(ctx context.Context, period time.Time) (Totals, error) {
	var t Totals
	t.PeriodStart = period
	err := a.db.QueryRow(ctx,
		`SELECT count(*), coalesce(sum(employee_count), 0), coalesce(sum(api_request_count), 0), coalesce(sum(storage_bytes_used), 0)
		 FROM usage_metrics WHERE period_start = $1`, period,
	).Scan(&t.TenantCount, &t.EmployeeCount, &t.APIRequestCount, &t.StorageBytes)
	if err != nil {
		return Totals{}, fmt.Errorf("summing usage totals: %w", err)
	}
	return t, nil
}

// TrendDelta compares the current period's totals against the prior
// calendar month's.
func (a *Aggregator) TrendDelta(ctx context.Context) (current, previous Totals, err error) {
	now := periodStart(time.Now())
	prior := periodStart(now.AddDate(0, -1, 0))

	current, err = a.totalsForPeriod(ctx, now)
	if err != nil {
		return Totals{}, Totals{}, err
	}
	previous, err = a.totalsForPeriod(ctx, prior)
	if err != nil {
		return Totals{}, Totals{}, err
	}
	return current, previous, nil
}

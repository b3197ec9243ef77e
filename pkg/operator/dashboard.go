package operator

import (
	"context"
	"sort"
)

const bytesPerGB = 1 << 30

// BuildDashboard computes the weighted cross-tenant health dashboard:
// 40% employees + 30% normalized API + 20% storage-GB + 10% alert weight,
// each dimension normalized against the observed maximum across active
// tenants, plus the open-alert severity histogram.
func (s *Store) BuildDashboard(ctx context.Context, topN int) (Dashboard, error) {
	rows, err := s.dashboardRows(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	alertCounts, err := s.alertCountsByTenant(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	histogram, err := s.severityHistogram(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	var maxEmployees, maxAPI, maxStorageGB, maxAlerts float64
	var totalEmployees, totalAPI int64
	for _, r := range rows {
		maxEmployees = maxFloat(maxEmployees, float64(r.EmployeeCount))
		maxAPI = maxFloat(maxAPI, float64(r.APIRequests))
		maxStorageGB = maxFloat(maxStorageGB, float64(r.StorageBytes)/bytesPerGB)
		maxAlerts = maxFloat(maxAlerts, float64(alertCounts[r.TenantID]))
		totalEmployees += r.EmployeeCount
		totalAPI += r.APIRequests
	}

	entries := make([]DashboardEntry, 0, len(rows))
	for _, r := range rows {
		employeeNorm := normalize(float64(r.EmployeeCount), maxEmployees)
		apiNorm := normalize(float64(r.APIRequests), maxAPI)
		storageNorm := normalize(float64(r.StorageBytes)/bytesPerGB, maxStorageGB)
		alertNorm := normalize(float64(alertCounts[r.TenantID]), maxAlerts)

		entries = append(entries, DashboardEntry{
			TenantID:       r.TenantID,
			Name:           r.Name,
			Score:          score(employeeNorm, apiNorm, storageNorm, alertNorm),
			EmployeeWeight: weightEmployees * employeeNorm,
			APIWeight:      weightAPI * apiNorm,
			StorageWeight:  weightStorage * storageNorm,
			AlertWeight:    weightAlerts * alertNorm,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}

	return Dashboard{
		TopTenants:        entries,
		TotalTenants:      len(rows),
		TotalEmployees:    totalEmployees,
		TotalAPIRequests:  totalAPI,
		SeverityHistogram: histogram,
	}, nil
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

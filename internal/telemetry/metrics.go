package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all handlers.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "hrctl",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors passed.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}

var TenantsProvisionedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "tenant",
		Name:      "provisioned_total",
		Help:      "Total number of tenants successfully provisioned.",
	},
)

var TenantsProvisioningFailedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "tenant",
		Name:      "provisioning_failed_total",
		Help:      "Total number of tenant provisioning attempts that failed.",
	},
)

var TenantLifecycleTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "tenant",
		Name:      "lifecycle_transitions_total",
		Help:      "Total number of tenant lifecycle transitions by target status.",
	},
	[]string{"to_status"},
)

var WebhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "billing",
		Name:      "webhooks_received_total",
		Help:      "Total number of billing webhooks received by provider and event type.",
	},
	[]string{"provider", "event_type"},
)

var WebhooksDedupedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "billing",
		Name:      "webhooks_deduped_total",
		Help:      "Total number of billing webhooks skipped as duplicates.",
	},
	[]string{"provider"},
)

var WebhookProcessingDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "hrctl",
		Subsystem: "billing",
		Name:      "webhook_processing_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"provider"},
)

var UsageOverageAlertsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "usage",
		Name:      "overage_alerts_total",
		Help:      "Total number of usage overage alerts raised by resource and severity.",
	},
	[]string{"resource", "severity"},
)

var AuditWriteFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Total number of admin audit entries that failed to persist.",
	},
)

var ImpersonationSessionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hrctl",
		Subsystem: "operator",
		Name:      "impersonation_sessions_total",
		Help:      "Total number of operator impersonation sessions issued.",
	},
)

// All returns all hrctl-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		TenantsProvisionedTotal,
		TenantsProvisioningFailedTotal,
		TenantLifecycleTransitionsTotal,
		WebhooksReceivedTotal,
		WebhooksDedupedTotal,
		WebhookProcessingDuration,
		UsageOverageAlertsTotal,
		AuditWriteFailuresTotal,
		ImpersonationSessionsTotal,
	}
}

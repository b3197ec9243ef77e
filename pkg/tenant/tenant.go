// Package tenant resolves the active tenant for an inbound request and
// publishes it on the request context (component C1). Isolation of the
// underlying rows is the job of pkg/isolation (C2); this package is only
// concerned with deriving and propagating identity.
package tenant

import (
	"context"
	"time"
)

// Status is a tenant's position in the lifecycle state machine (C3).
type Status string

const (
	StatusProvisioning       Status = "provisioning"
	StatusProvisioningFailed Status = "provisioning_failed"
	StatusActive             Status = "active"
	StatusSuspended          Status = "suspended"
	StatusCancelled          Status = "cancelled"
	StatusPendingDeletion    Status = "pending_deletion"
	StatusDeleted            Status = "deleted"
)

// Info holds the resolved tenant metadata published on the request context.
type Info struct {
	ID                  ID
	Name                string
	Domain              string
	Status              Status
	SubscriptionActive  bool
	MaxEmployees        int
	SuperAdminBypass    bool // published by C1 when the principal is SuperAdmin
	GracePeriodEndsAt   *time.Time
	ScheduledDeletionAt *time.Time
}

type contextKey string

const infoKey contextKey = "tenant_info"

// NewContext stores tenant info in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant info from the context.
// Returns nil if no tenant is set.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}

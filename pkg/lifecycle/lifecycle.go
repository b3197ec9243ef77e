// Package lifecycle implements the tenant lifecycle state machine (C3):
// provisioning, suspension, cancellation, and deletion, plus the background
// sweeper that performs scheduled hard deletes.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/pkg/tenant"
)

// Status is an alias of pkg/tenant.Status, re-exported here with its values
// because the adjacency map below is this package's concern, not
// pkg/tenant's — pkg/tenant only needs to read the current value.
type Status = tenant.Status

const (
	StatusProvisioning      = tenant.StatusProvisioning
	StatusProvisioningFailed = tenant.StatusProvisioningFailed
	StatusActive            = tenant.StatusActive
	StatusSuspended         = tenant.StatusSuspended
	StatusCancelled         = tenant.StatusCancelled
	StatusPendingDeletion   = tenant.StatusPendingDeletion
	StatusDeleted           = tenant.StatusDeleted
)

// adjacency is the fixed set of legal transitions. Transition refuses
// any edge not listed here.
var adjacency = map[Status][]Status{
	StatusProvisioning:      {StatusActive, StatusProvisioningFailed},
	StatusProvisioningFailed: {StatusProvisioning},
	StatusActive:            {StatusSuspended, StatusCancelled},
	StatusSuspended:         {StatusActive, StatusCancelled},
	StatusCancelled:         {StatusPendingDeletion},
	StatusPendingDeletion:   {StatusDeleted, StatusActive},
	StatusDeleted:           {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range adjacency[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Event is a single recorded lifecycle transition.
type Event struct {
	TenantID    tenant.ID
	FromStatus  Status
	ToStatus    Status
	Reason      string
	TriggeredBy string
	Metadata    map[string]any
	OccurredAt  time.Time
}

func (e Event) GetTenantID() tenant.ID { return e.TenantID }

// ErrInvalidTransition is returned when a requested transition is not in
// the adjacency map.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition tenant from %q to %q", e.From, e.To)
}

func validateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return apperr.Conflict("invalid_lifecycle_transition", (&ErrInvalidTransition{From: from, To: to}).Error())
	}
	return nil
}

// ProvisionRequest is the input to Manager.Provision.
type ProvisionRequest struct {
	Name             string
	Domain           string
	AdminEmail       string
	IdempotencyToken string
	TrialDays        int
}

// Package billing implements the billing webhook ingestor (C5): signature
// verification, persist-first storage with dedup, locked dispatch to the
// plan and lifecycle packages, and a background retry scanner for events
// whose dispatch failed.
package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a provider webhook decoded down to the fields the ingestor
// dispatches on, independent of the provider's own SDK types.
type Event struct {
	ID      string
	Type    string
	Data    json.RawMessage
}

// WebhookEvent is the persisted record of one inbound provider webhook,
// always written before dispatch is attempted.
type WebhookEvent struct {
	ID               uuid.UUID  `json:"id"`
	Provider         string     `json:"provider"`
	ExternalEventID  string     `json:"external_event_id"`
	EventType        string     `json:"event_type"`
	Payload          []byte     `json:"-"`
	SignatureValid   bool       `json:"signature_valid"`
	Processed        bool       `json:"processed"`
	Attempts         int        `json:"attempts"`
	LastError        *string    `json:"last_error,omitempty"`
	ReceivedAt       time.Time  `json:"received_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// SignatureVerifier authenticates and parses an inbound webhook body. One
// implementation per payment provider; Stripe is the only one wired, but
// the contract admits any provider as a small adapter.
type SignatureVerifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}

const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// maxFailureAttempts is the threshold past which a repeatedly-failing
// payment triggers suspension.
const maxFailureAttempts = 3

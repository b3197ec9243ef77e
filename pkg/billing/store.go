package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/db"
)

// Store persists webhook events. Webhook events are platform-wide, not
// tenant-scoped by isolation.Scope, since a single event can reference a
// subscription before the tenant link is even known (e.g. signature
// verification failures); dispatch resolves the tenant from the event
// payload instead.
type Store struct {
	db db.DBTX
}

func NewStore(dbtx db.DBTX) *Store { return &Store{db: dbtx} }

// Persist writes the raw webhook event, step 1 of the ingestion pipeline —
// always called before dispatch, regardless of signature validity.
// subscriptionExternalID is extracted from the payload up front (rather
// than re-parsed later) so FailureCount can index on it directly.
func (s *Store) Persist(ctx context.Context, provider, externalEventID, eventType string, payload []byte, signatureValid bool, subscriptionExternalID string) (WebhookEvent, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO webhook_events (provider, external_event_id, event_type, payload, signature_valid, subscription_external_id, processed, attempts, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, 0, now())
		 ON CONFLICT (provider, external_event_id) DO UPDATE SET event_type = webhook_events.event_type
		 RETURNING id, provider, external_event_id, event_type, payload, signature_valid, processed, attempts, last_error, received_at, processed_at`,
		provider, externalEventID, eventType, payload, signatureValid, nullIfEmpty(subscriptionExternalID))
	return scanEvent(row)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsProcessed reports whether this event already completed dispatch. Handle
// does not call it; it reads the same flag from the row Persist returns.
func (s *Store) IsProcessed(ctx context.Context, provider, externalEventID string) (bool, error) {
	var processed bool
	err := s.db.QueryRow(ctx,
		`SELECT processed FROM webhook_events WHERE provider = $1 AND external_event_id = $2`,
		provider, externalEventID).Scan(&processed)
	if err != nil {
		return false, fmt.Errorf("checking processed state: %w", err)
	}
	return processed, nil
}

// MarkProcessed flips processed=true after the dispatched effect commits.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE webhook_events SET processed = true, processed_at = now() WHERE id = $1`, id)
	if err != nil {
		return apperr.Transient("db_mark_processed", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and records the dispatch error,
// leaving processed=false so RetryScanner picks it up.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, dispatchErr error) error {
	_, err := s.db.Exec(ctx,
		`UPDATE webhook_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`,
		dispatchErr.Error(), id)
	if err != nil {
		return apperr.Transient("db_mark_failed", err)
	}
	return nil
}

// PendingRetries returns unprocessed, signature-valid events for
// RetryScanner's sweep, oldest first, capped at maxAttempts.
func (s *Store) PendingRetries(ctx context.Context, maxAttempts int, limit int) ([]WebhookEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, provider, external_event_id, event_type, payload, signature_valid, processed, attempts, last_error, received_at, processed_at
		 FROM webhook_events
		 WHERE processed = false AND signature_valid = true AND attempts < $1
		 ORDER BY received_at ASC LIMIT $2`,
		maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending retries: %w", err)
	}
	defer rows.Close()
	var out []WebhookEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FailureCount returns how many invoice.payment_failed events a subscription
// has accrued, used to decide whether to cross the suspension threshold.
func (s *Store) FailureCount(ctx context.Context, subscriptionExternalID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM webhook_events
		 WHERE event_type = $1 AND subscription_external_id = $2 AND received_at >= $3`,
		EventInvoicePaymentFailed, subscriptionExternalID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting payment failures: %w", err)
	}
	return n, nil
}

// ResolveTenantBySubscriptionExternalID looks up which tenant owns a
// subscription by its provider-side id, needed because invoice webhooks
// only carry the subscription id, not tenant metadata.
func (s *Store) ResolveTenantBySubscriptionExternalID(ctx context.Context, externalID string) (int64, error) {
	var tenantIDRaw int64
	err := s.db.QueryRow(ctx, `SELECT tenant_id FROM subscriptions WHERE external_provider_id = $1`, externalID).Scan(&tenantIDRaw)
	if err != nil {
		return 0, fmt.Errorf("resolving tenant for subscription %s: %w", externalID, err)
	}
	return tenantIDRaw, nil
}

func scanEvent(row interface{ Scan(dest ...any) error }) (WebhookEvent, error) {
	var e WebhookEvent
	err := row.Scan(&e.ID, &e.Provider, &e.ExternalEventID, &e.EventType, &e.Payload,
		&e.SignatureValid, &e.Processed, &e.Attempts, &e.LastError, &e.ReceivedAt, &e.ProcessedAt)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("scanning webhook event: %w", err)
	}
	return e, nil
}

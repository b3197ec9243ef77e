package billing

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/hrctl/internal/apperr"
	"github.com/wisbric/hrctl/internal/httpserver"
	"github.com/wisbric/hrctl/pkg/lifecycle"
	"github.com/wisbric/hrctl/pkg/notify"
	"github.com/wisbric/hrctl/pkg/plan"
	"github.com/wisbric/hrctl/pkg/tenant"
)

const lockTTL = 30 * time.Second

// Ingestor is the HTTP entry point of C5: verify, persist, dedup, lock,
// dispatch.
type Ingestor struct {
	verifier   SignatureVerifier
	store      *Store
	rdb        *redis.Client
	catalog    *plan.Catalog
	lifecycle  *lifecycle.Manager
	notifier   notify.Notifier
	logger     *slog.Logger
	maxAttempts int
}

func NewIngestor(verifier SignatureVerifier, store *Store, rdb *redis.Client, catalog *plan.Catalog, lm *lifecycle.Manager, notifier notify.Notifier, logger *slog.Logger) *Ingestor {
	return &Ingestor{verifier: verifier, store: store, rdb: rdb, catalog: catalog, lifecycle: lm, notifier: notifier, logger: logger, maxAttempts: maxFailureAttempts}
}

// subscriptionObject is the subset of a Stripe subscription/invoice payload
// the ingestor needs, decoded independently of stripe-go's own types so
// dispatch logic does not depend on the SDK beyond signature verification.
type subscriptionObject struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Metadata struct {
		TenantID string `json:"tenant_id"`
	} `json:"metadata"`
}

type invoiceObject struct {
	Subscription string `json:"subscription"`
	Customer     string `json:"customer"`
}

// Handle implements the verify-persist-dedup-dispatch-mark pipeline.
func (ing *Ingestor) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}

	evt, verifyErr := ing.verifier.Verify(body, r.Header.Get("Stripe-Signature"))
	signatureValid := verifyErr == nil

	eventType := evt.Type
	externalEventID := evt.ID
	if !signatureValid {
		// Still persist, under a best-effort external ID, so the failure is
		// recorded in webhook_events (signature_valid = false) instead of
		// silently dropped.
		externalEventID = fmt.Sprintf("invalid:%x", sha256Sum(body))
		eventType = "signature_invalid"
	}

	subExternalID := extractSubscriptionID(eventType, evt.Data)

	stored, err := ing.store.Persist(r.Context(), "stripe", externalEventID, eventType, body, signatureValid, subExternalID)
	if err != nil {
		ing.logger.Error("persisting webhook event", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "could not persist webhook event")
		return
	}

	// Always 200 once persisted — the provider must not retry a stored event.
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "received"})

	if !signatureValid {
		ing.logger.Warn("webhook signature invalid", "error", verifyErr, "event_id", externalEventID)
		return
	}

	if stored.Processed {
		return // already dispatched (P6 dedup)
	}

	ing.dispatchLocked(r.Context(), stored)
}

// dispatchLocked acquires a Redis lock keyed on (provider, external_event_id)
// before dispatching, so two concurrent deliveries of the same event never
// both dispatch; if the lock is already held, dispatch is skipped and left
// to RetryScanner.
func (ing *Ingestor) dispatchLocked(ctx context.Context, evt WebhookEvent) {
	lockKey := fmt.Sprintf("billing:lock:%s:%s", evt.Provider, evt.ExternalEventID)
	acquired, err := ing.rdb.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil {
		ing.logger.Warn("billing lock acquire failed, proceeding without lock", "error", err)
	} else if !acquired {
		ing.logger.Info("billing dispatch already in flight, skipping", "event_id", evt.ExternalEventID)
		return
	}
	if acquired {
		defer ing.rdb.Del(ctx, lockKey)
	}

	if err := ing.dispatch(ctx, evt); err != nil {
		ing.logger.Error("dispatching webhook event", "error", err, "event_type", evt.EventType)
		if markErr := ing.store.MarkFailed(ctx, evt.ID, err); markErr != nil {
			ing.logger.Error("marking webhook event failed", "error", markErr)
		}
		return
	}

	if err := ing.store.MarkProcessed(ctx, evt.ID); err != nil {
		ing.logger.Error("marking webhook event processed", "error", err)
	}
}

func (ing *Ingestor) dispatch(ctx context.Context, evt WebhookEvent) error {
	switch evt.EventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return ing.handleSubscriptionChange(ctx, evt)
	case EventSubscriptionDeleted:
		return ing.handleSubscriptionCanceled(ctx, evt)
	case EventInvoicePaymentFailed:
		return ing.handlePaymentFailed(ctx, evt)
	default:
		ing.logger.Debug("ignoring unhandled webhook event type", "event_type", evt.EventType)
		return nil
	}
}

func (ing *Ingestor) handleSubscriptionChange(ctx context.Context, evt WebhookEvent) error {
	var sub subscriptionObject
	if err := json.Unmarshal(evt.Payload, &sub); err != nil {
		return apperr.Validation("invalid_subscription_payload", err.Error())
	}
	if sub.Metadata.TenantID == "" {
		return apperr.Validation("missing_tenant_metadata", "subscription has no tenant_id metadata")
	}
	tid := tenant.ID(sub.Metadata.TenantID)

	if sub.Status == string(plan.SubStatusActive) {
		if err := ing.lifecycle.Resume(ctx, tid, "subscription active via webhook", "billing"); err != nil {
			ing.logger.Warn("activation transition no-op", "tenant_id", tid, "error", err)
		}
	}
	ing.notifier.Notify(ctx, notify.Message{TenantID: tid, Kind: notify.KindPlanChange, Text: fmt.Sprintf("subscription %s is now %s", sub.ID, sub.Status)})
	return nil
}

func (ing *Ingestor) handleSubscriptionCanceled(ctx context.Context, evt WebhookEvent) error {
	var sub subscriptionObject
	if err := json.Unmarshal(evt.Payload, &sub); err != nil {
		return apperr.Validation("invalid_subscription_payload", err.Error())
	}
	if sub.Metadata.TenantID == "" {
		return apperr.Validation("missing_tenant_metadata", "subscription has no tenant_id metadata")
	}
	tid := tenant.ID(sub.Metadata.TenantID)
	ing.notifier.Notify(ctx, notify.Message{TenantID: tid, Kind: notify.KindCancellation, Text: fmt.Sprintf("subscription %s canceled upstream", sub.ID)})
	return ing.lifecycle.Cancel(ctx, tid, "subscription canceled via webhook", "billing")
}

func (ing *Ingestor) handlePaymentFailed(ctx context.Context, evt WebhookEvent) error {
	var inv invoiceObject
	if err := json.Unmarshal(evt.Payload, &inv); err != nil {
		return apperr.Validation("invalid_invoice_payload", err.Error())
	}
	if inv.Subscription == "" {
		return apperr.Validation("missing_subscription_reference", "invoice has no subscription")
	}

	count, err := ing.store.FailureCount(ctx, inv.Subscription, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		return err
	}

	tenantIDRaw, err := ing.store.ResolveTenantBySubscriptionExternalID(ctx, inv.Subscription)
	if err != nil {
		return fmt.Errorf("resolving tenant for payment failure: %w", err)
	}
	tid := tenant.IDFromInt64(tenantIDRaw)

	ing.notifier.Notify(ctx, notify.Message{TenantID: tid, Kind: notify.KindPaymentFail, Text: fmt.Sprintf("payment failed for subscription %s (attempt %d)", inv.Subscription, count)})

	if count >= ing.maxAttempts {
		if err := ing.lifecycle.Suspend(ctx, tid, fmt.Sprintf("%d consecutive payment failures", count), "billing"); err != nil {
			return fmt.Errorf("suspending tenant after payment failures: %w", err)
		}
	}
	return nil
}

func sha256Sum(data []byte) [32]byte { return sha256.Sum256(data) }

func extractSubscriptionID(eventType string, data []byte) string {
	switch eventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub subscriptionObject
		if err := json.Unmarshal(data, &sub); err == nil {
			return sub.ID
		}
	case EventInvoicePaymentFailed:
		var inv invoiceObject
		if err := json.Unmarshal(data, &inv); err == nil {
			return inv.Subscription
		}
	}
	return ""
}

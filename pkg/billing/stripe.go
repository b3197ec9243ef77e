package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v74/webhook"
)

// StripeVerifier wraps stripe-go's webhook.ConstructEvent, the standard
// way to authenticate an inbound Stripe event before trusting its payload.
type StripeVerifier struct {
	signingSecret string
}

func NewStripeVerifier(signingSecret string) *StripeVerifier {
	return &StripeVerifier{signingSecret: signingSecret}
}

func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (Event, error) {
	evt, err := webhook.ConstructEvent(payload, signatureHeader, v.signingSecret)
	if err != nil {
		return Event{}, fmt.Errorf("verifying stripe signature: %w", err)
	}
	return Event{ID: evt.ID, Type: string(evt.Type), Data: evt.Data.Raw}, nil
}

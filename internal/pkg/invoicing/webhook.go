package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

// EventRecorder stores webhook events idempotently.
type EventRecorder interface {
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error
}

// WebhookResult reports what happened to a delivered event.
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Handled   bool   `json:"handled"`
}

// StripeWebhook verifies, records and applies Stripe invoice events.
type StripeWebhook struct {
	bridge *Bridge
	events EventRecorder
	secret string
}

// NewStripeWebhook creates a webhook handler for the signing secret.
func NewStripeWebhook(bridge *Bridge, events EventRecorder, secret string) *StripeWebhook {
	return &StripeWebhook{bridge: bridge, events: events, secret: secret}
}

// NewStripeWebhookFromEnv reads STRIPE_WEBHOOK_SECRET.
func NewStripeWebhookFromEnv(bridge *Bridge, events EventRecorder) (*StripeWebhook, error) {
	secret := strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	if secret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is not set")
	}
	return NewStripeWebhook(bridge, events, secret), nil
}

// Handle verifies the Stripe-Signature header, stores the event once and
// applies invoice events to their mirrors. Redelivered events are
// acknowledged without being applied again.
func (w *StripeWebhook) Handle(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warnf("[InvoiceBridge] Rejected webhook: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	res := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}
	created, stored, err := w.events.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, err
	}
	if !created && stored.IsApplied() {
		res.Duplicate = true
		return res, nil
	}

	handled, procErr := w.apply(ctx, event)
	res.Handled = handled
	if err := w.events.MarkWebhookProcessed(ctx, stored.ID, procErr); err != nil {
		log.Errorf("[InvoiceBridge] Failed to mark webhook event %s processed: %v", event.ID, err)
	}
	if procErr != nil {
		log.Warnf("[InvoiceBridge] Webhook event %s (%s) failed: %v", event.ID, event.Type, procErr)
		return res, procErr
	}
	return res, nil
}

func (w *StripeWebhook) apply(ctx context.Context, event stripe.Event) (bool, error) {
	switch event.Type {
	case "invoice.paid", "invoice.payment_failed", "invoice.finalized", "invoice.sent",
		"invoice.voided", "invoice.marked_uncollectible", "invoice.updated":
	default:
		return false, nil
	}
	if event.Data == nil {
		return false, errors.New("event has no data")
	}

	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return false, fmt.Errorf("decode invoice: %w", err)
	}
	_, err := w.bridge.ApplyInvoice(ctx, invoiceFromStripe(&inv))
	if errors.Is(err, ErrInvoiceNotFound) {
		// invoices created outside the portal
		log.Infof("[InvoiceBridge] Ignoring %s for unknown invoice %s", event.Type, inv.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

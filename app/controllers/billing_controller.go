package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/documents"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/invoicing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

// DocumentResolver returns a stored document with a download URL.
type DocumentResolver interface {
	Get(ctx context.Context, id uint) (*documents.DocumentInfo, error)
}

// BillNotifier emails a bill to its owner.
type BillNotifier interface {
	SendBillNotification(ctx context.Context, bill *models.Bill) bool
}

// WebhookHandler verifies and applies a provider webhook delivery.
type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) (*invoicing.WebhookResult, error)
}

// BillingDeps are the services behind the billing pages. Bridge, Webhook,
// Notifier, Documents and Jobs are optional; handlers report them as not
// configured when nil. With Jobs set, period-wide actions run in the
// background.
type BillingDeps struct {
	Service   *billing.Service
	Users     repository.UserRepository
	Documents DocumentResolver
	Bridge    *invoicing.Bridge
	Webhook   WebhookHandler
	Notifier  BillNotifier
	Jobs      JobEnqueuer
}

// BillingController serves the talent and admin billing pages, the billing
// API and provider webhooks.
type BillingController struct {
	BillingDeps
	now func() time.Time
}

// NewBillingController creates a billing controller.
func NewBillingController(deps BillingDeps) *BillingController {
	return &BillingController{BillingDeps: deps, now: time.Now}
}

// billView is a bill with the status shown to readers.
type billView struct {
	models.Bill
	Status string
	Label  string
}

func (bc *BillingController) viewOf(b models.Bill) billView {
	return billView{Bill: b, Status: b.EffectiveStatus(bc.now()), Label: b.PeriodLabel()}
}

func (bc *BillingController) viewsOf(bills []models.Bill) []billView {
	out := make([]billView, 0, len(bills))
	for _, b := range bills {
		out = append(out, bc.viewOf(b))
	}
	return out
}

// billForViewer loads a bill the current user may see. Talents only see their
// own bills; anything else is reported as not found.
func (bc *BillingController) billForViewer(ctx context.Context, c *fiber.Ctx, billID uint) (*models.Bill, error) {
	bill, err := bc.Service.Ledger.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	uc := usercontext.GetUserContext(c)
	if !uc.IsAdmin && bill.UserID != uc.UserID {
		return nil, billing.ErrBillNotFound
	}
	return bill, nil
}

// HandleUserBilling lists the logged-in talent's bills with a summary.
func (bc *BillingController) HandleUserBilling(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()
	userID := usercontext.GetUserID(c)

	bills, err := bc.Service.Ledger.ListBills(ctx, userID)
	if err != nil {
		log.Errorf("[HTTP] Listing bills for user %d failed: %v", userID, err)
		return fiber.ErrInternalServerError
	}
	stats := billing.SummarizeBills(bills, bc.now())

	return render(c, "user/billing", " | Billing", fiber.Map{
		"Bills": bc.viewsOf(bills),
		"Stats": stats,
	})
}

// HandleUserBill shows one bill with its invoices and payment link.
func (bc *BillingController) HandleUserBill(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return fiber.ErrNotFound
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bill, err := bc.billForViewer(ctx, c, billID)
	if err != nil {
		if billing.KindOf(err) == billing.KindNotFound {
			return fiber.ErrNotFound
		}
		return err
	}
	invoices, err := bc.Service.Linker.GetInvoicesForBill(ctx, bill.ID)
	if err != nil {
		return err
	}

	data := fiber.Map{
		"Bill":     bc.viewOf(*bill),
		"Invoices": invoices,
	}
	if bc.Bridge != nil {
		if mirror, err := bc.Bridge.GetMirror(ctx, bill.ID); err == nil && mirror.IsMirrored() {
			data["Mirror"] = mirror
		}
	}
	return render(c, "user/bill", " | "+bill.PeriodLabel(), data)
}

// HandleBillDocument redirects to a download URL for an invoice linked to the bill.
func (bc *BillingController) HandleBillDocument(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return fiber.ErrNotFound
	}
	linkID, err := parseIDParam(c, "link")
	if err != nil {
		return fiber.ErrNotFound
	}
	if bc.Documents == nil {
		return fiber.ErrServiceUnavailable
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bill, err := bc.billForViewer(ctx, c, billID)
	if err != nil {
		if billing.KindOf(err) == billing.KindNotFound {
			return fiber.ErrNotFound
		}
		return err
	}
	invoices, err := bc.Service.Linker.GetInvoicesForBill(ctx, bill.ID)
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		if inv.ID != linkID {
			continue
		}
		info, err := bc.Documents.Get(ctx, inv.DocumentID)
		if err != nil {
			if errors.Is(err, documents.ErrNotFound) {
				return fiber.ErrNotFound
			}
			return err
		}
		return c.Redirect(info.URL, fiber.StatusSeeOther)
	}
	return fiber.ErrNotFound
}

// HandleStripeWebhook verifies and applies a Stripe event. Signature failures
// are answered with 400; processing failures with 500 so Stripe retries.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	if bc.Webhook == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "webhook_not_configured"})
	}
	payload := append([]byte(nil), c.Body()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := bc.Webhook.Handle(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, invoicing.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Errorf("[InvoiceBridge] Webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"event_id":  res.EventID,
		"duplicate": res.Duplicate,
		"handled":   res.Handled,
	})
}

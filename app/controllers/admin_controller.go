package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/constants"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/invoicing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

// unlinkedGracePeriod keeps freshly uploaded documents out of the orphan list
// while an upload-and-link is still in flight.
const unlinkedGracePeriod = time.Hour

func adminBillURL(billID uint) string {
	return fmt.Sprintf("%s/bills/%d", constants.AdminBillingRoute, billID)
}

func adminPeriodURL(p billing.Period) string {
	if p.IsMonth() {
		return constants.AdminBillingRoute + "?period=" + p.Start.Format("2006-01")
	}
	return constants.AdminBillingRoute + "?period=" + p.Key()
}

// periodFromRequest reads the period form or query value, defaulting to the
// previous calendar month in the billing time zone.
func (bc *BillingController) periodFromRequest(c *fiber.Ctx) (billing.Period, error) {
	raw := strings.TrimSpace(c.FormValue("period"))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("period"))
	}
	if raw == "" {
		return billing.PreviousMonth(bc.now().In(bc.Service.Config().Location)), nil
	}
	return billing.ParsePeriod(raw)
}

// JobEnqueuer queues per-bill background work.
type JobEnqueuer interface {
	Handles(jobType jobqueue.JobType) bool
	EnqueueBillJob(ctx context.Context, jobType jobqueue.JobType, billID, actor uint) (*jobqueue.Job, error)
}

// enqueueBills queues one job per bill and returns how many were queued.
func (bc *BillingController) enqueueBills(ctx context.Context, jobType jobqueue.JobType, bills []models.Bill, actor uint) (int, error) {
	queued := 0
	for _, b := range bills {
		if _, err := bc.Jobs.EnqueueBillJob(ctx, jobType, b.ID, actor); err != nil {
			log.Errorf("[Billing] Failed to queue %s for bill %d: %v", jobType, b.ID, err)
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func (bc *BillingController) runsInBackground(jobType jobqueue.JobType) bool {
	return bc.Jobs != nil && bc.Jobs.Handles(jobType)
}

// HandleDashboard lists the bills of one period with their totals.
func (bc *BillingController) HandleDashboard(c *fiber.Ctx) error {
	period, err := bc.periodFromRequest(c)
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bills, err := bc.Service.Ledger.ListBillsForPeriod(ctx, period)
	if err != nil {
		log.Errorf("[HTTP] Listing bills for %s failed: %v", period.Key(), err)
		return fiber.ErrInternalServerError
	}
	if wantsJSON(c) {
		return respondJSON(c, bills, period.Label(), nil)
	}
	return render(c, "admin/billing", " | Admin Billing", fiber.Map{
		"Period":      period,
		"PeriodValue": period.Start.Format("2006-01"),
		"Bills":       bc.viewsOf(bills),
		"Stats":       billing.SummarizeBills(bills, bc.now()),
		"Mirroring":   bc.Bridge != nil,
		"Notifying":   bc.Notifier != nil,
	})
}

// HandleBill shows one bill with all admin actions.
func (bc *BillingController) HandleBill(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return fiber.ErrNotFound
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bill, err := bc.Service.Ledger.GetBill(ctx, billID)
	if err != nil {
		if billing.KindOf(err) == billing.KindNotFound {
			return fiber.ErrNotFound
		}
		return err
	}
	invoices, err := bc.Service.Linker.GetInvoicesForBill(ctx, billID)
	if err != nil {
		return err
	}
	owner, err := bc.Users.GetByID(ctx, bill.UserID)
	if err != nil {
		log.Warnf("[HTTP] Owner %d of bill %d not found: %v", bill.UserID, bill.ID, err)
	}

	data := fiber.Map{
		"Bill":      bc.viewOf(*bill),
		"Owner":     owner,
		"Invoices":  invoices,
		"Mirroring": bc.Bridge != nil,
		"Notifying": bc.Notifier != nil,
	}
	if bc.Bridge != nil {
		if mirror, err := bc.Bridge.GetMirror(ctx, bill.ID); err == nil {
			data["Mirror"] = mirror
		}
	}
	if wantsJSON(c) {
		return respondJSON(c, data, "", nil)
	}
	return render(c, "admin/bill", fmt.Sprintf(" | Bill %d", bill.ID), data)
}

// HandleRunMonthly bills every approved talent for the period.
func (bc *BillingController) HandleRunMonthly(c *fiber.Ctx) error {
	period, err := bc.periodFromRequest(c)
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	ctx, cancel := requestContext(c, 10*time.Minute)
	defer cancel()

	summary, err := bc.Service.GenerateMonthlyBills(ctx, period, usercontext.GetUserID(c))
	if err != nil {
		return respond(c, adminPeriodURL(period), nil, "", err)
	}
	msg := fmt.Sprintf("%s: %d created, %d already billed, %d without activity, %d failed",
		summary.Label, summary.Created, summary.Existing, summary.Skipped, summary.Failed)
	return respond(c, adminPeriodURL(period), summary, msg, nil)
}

// HandlePreview prices a talent's activity without storing a bill.
func (bc *BillingController) HandlePreview(c *fiber.Ctx) error {
	userID, err := parseFormID(c, "user_id")
	if err != nil {
		return respondJSON(c, nil, "", err)
	}
	period, err := bc.periodFromRequest(c)
	if err != nil {
		return respondJSON(c, nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	preview, err := bc.Service.PreviewBill(ctx, userID, period)
	return respondJSON(c, preview, "preview", err)
}

// HandleCreateBill aggregates and stores one talent's bill.
func (bc *BillingController) HandleCreateBill(c *fiber.Ctx) error {
	userID, err := parseFormID(c, "user_id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	period, err := bc.periodFromRequest(c)
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bill, err := bc.Service.CreateBillFromActivity(ctx, userID, period, usercontext.GetUserID(c), c.FormValue("notes"))
	if err != nil {
		if errors.Is(err, billing.ErrBillExists) && bill != nil {
			return respond(c, adminBillURL(bill.ID), bill, "", err)
		}
		return respond(c, adminPeriodURL(period), bill, "", err)
	}
	return respond(c, adminBillURL(bill.ID), bill, fmt.Sprintf("Bill %d created", bill.ID), nil)
}

// HandleUpdateStatus moves a bill through its lifecycle.
func (bc *BillingController) HandleUpdateStatus(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	upd := billing.StatusUpdate{
		Status:           c.FormValue("status"),
		PaymentMethod:    c.FormValue("payment_method"),
		PaymentReference: c.FormValue("payment_reference"),
		Actor:            usercontext.GetUserID(c),
	}
	if raw := strings.TrimSpace(c.FormValue("payment_date")); raw != "" {
		paid, err := time.ParseInLocation("2006-01-02", raw, bc.Service.Config().Location)
		if err != nil {
			return respond(c, adminBillURL(billID), nil, "", fmt.Errorf("%w: payment date %q", billing.ErrInvalidInput, raw))
		}
		upd.PaymentDate = &paid
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bill, err := bc.Service.Ledger.UpdateStatus(ctx, billID, upd)
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), bill, "Status updated to "+bill.BillStatus, nil)
}

// HandleApplyCredit grants account credit on a bill.
func (bc *BillingController) HandleApplyCredit(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("amount")))
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", fmt.Errorf("%w: amount must be a number", billing.ErrInvalidCredit))
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bill, err := bc.Service.Ledger.ApplyCredit(ctx, billID, amount, c.FormValue("reason"), usercontext.GetUserID(c))
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), bill, "Credit of "+amount.StringFixed(2)+" applied", nil)
}

// HandleDeleteBill removes a bill and its invoice links.
func (bc *BillingController) HandleDeleteBill(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := bc.Service.Ledger.DeleteBill(ctx, billID, usercontext.GetUserID(c)); err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, constants.AdminBillingRoute, fiber.Map{"bill_id": billID}, fmt.Sprintf("Bill %d deleted", billID), nil)
}

func parseInvoiceAmount(raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: invoice amount %q", billing.ErrInvalidInput, raw)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func formBool(c *fiber.Ctx, name string) bool {
	v, _ := strconv.ParseBool(c.FormValue(name))
	return v || c.FormValue(name) == "on"
}

// HandleLinkDocument links an already stored document to a bill.
func (bc *BillingController) HandleLinkDocument(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	documentID, err := parseFormID(c, "document_id")
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	amount, err := parseInvoiceAmount(c.FormValue("invoice_amount"))
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	outcome, err := bc.Service.Linker.LinkDocument(ctx, billing.LinkInput{
		BillID:        billID,
		DocumentID:    documentID,
		InvoiceType:   c.FormValue("invoice_type"),
		InvoiceNumber: c.FormValue("invoice_number"),
		Amount:        amount,
		IsPrimary:     formBool(c, "is_primary"),
		Actor:         usercontext.GetUserID(c),
	})
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), outcome, "Invoice link "+outcome.Action, nil)
}

// HandleUploadInvoice stores an uploaded file for the bill's owner and links it.
func (bc *BillingController) HandleUploadInvoice(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", fmt.Errorf("%w: no file uploaded", billing.ErrInvalidInput))
	}
	amount, err := parseInvoiceAmount(c.FormValue("invoice_amount"))
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	file, err := fh.Open()
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	defer file.Close()

	ctx, cancel := requestContext(c, 2*time.Minute)
	defer cancel()

	outcome, err := bc.Service.Linker.UploadAndLink(ctx, billing.UploadLinkInput{
		BillID:        billID,
		Filename:      fh.Filename,
		Content:       file,
		Description:   c.FormValue("description"),
		InvoiceType:   c.FormValue("invoice_type"),
		InvoiceNumber: c.FormValue("invoice_number"),
		Amount:        amount,
		IsPrimary:     formBool(c, "is_primary"),
		UploadedBy:    usercontext.GetUserID(c),
	})
	if err != nil {
		var afterUpload *billing.LinkAfterUploadError
		if errors.As(err, &afterUpload) {
			return respond(c, adminBillURL(billID), afterUpload.Document, "", err)
		}
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), outcome, fmt.Sprintf("%s uploaded and linked", outcome.Document.Filename), nil)
}

// HandleSetPrimary makes one invoice link the bill's primary invoice.
func (bc *BillingController) HandleSetPrimary(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	linkID, err := parseIDParam(c, "link")
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	link, err := bc.Service.Linker.SetPrimary(ctx, billID, linkID)
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), link, "Primary invoice updated", nil)
}

// HandleUnlink removes an invoice link. The document itself is kept.
func (bc *BillingController) HandleUnlink(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	linkID, err := parseIDParam(c, "link")
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	if err := bc.Service.Linker.Unlink(ctx, billID, linkID); err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), fiber.Map{"link_id": linkID}, "Invoice unlinked", nil)
}

// HandleUnlinkedDocuments lists invoice documents no bill links to.
func (bc *BillingController) HandleUnlinkedDocuments(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	docs, err := bc.Service.Linker.ListUnlinkedInvoiceDocuments(ctx, bc.now().Add(-unlinkedGracePeriod))
	return respondJSON(c, docs, fmt.Sprintf("%d unlinked documents", len(docs)), err)
}

// HandleMirrorInvoice creates the external invoice for a bill.
func (bc *BillingController) HandleMirrorInvoice(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	if bc.Bridge == nil {
		return respond(c, adminBillURL(billID), nil, "", errNotConfigured)
	}
	ctx, cancel := requestContext(c, 2*time.Minute)
	defer cancel()

	mirror, err := bc.Bridge.MirrorInvoice(ctx, billID)
	if err != nil {
		return respond(c, adminBillURL(billID), mirror, "", err)
	}
	return respond(c, adminBillURL(billID), mirror, "External invoice "+mirror.ExternalID()+" created", nil)
}

// HandleMirrorBatch mirrors every open bill of a period.
func (bc *BillingController) HandleMirrorBatch(c *fiber.Ctx) error {
	period, err := bc.periodFromRequest(c)
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	if bc.Bridge == nil {
		return respond(c, adminPeriodURL(period), nil, "", errNotConfigured)
	}
	ctx, cancel := requestContext(c, 30*time.Minute)
	defer cancel()

	bills, err := bc.Service.Ledger.ListBillsForPeriod(ctx, period)
	if err != nil {
		return respond(c, adminPeriodURL(period), nil, "", err)
	}
	pending := make([]models.Bill, 0, len(bills))
	for _, b := range bills {
		if b.BillStatus == models.BillStatusCancelled {
			continue
		}
		if mirror, err := bc.Bridge.GetMirror(ctx, b.ID); err == nil && mirror.IsMirrored() &&
			mirror.Status != models.ExternalInvoicePending && mirror.Status != models.ExternalInvoiceDraft {
			continue
		}
		pending = append(pending, b)
	}

	if bc.runsInBackground(jobqueue.JobTypeMirrorInvoice) {
		if limit := bc.Service.Config().MirrorBatchLimit; limit > 0 && len(pending) > limit {
			return respond(c, adminPeriodURL(period), nil, "", fmt.Errorf("%w: %d bills, limit %d", invoicing.ErrBatchTooLarge, len(pending), limit))
		}
		queued, err := bc.enqueueBills(ctx, jobqueue.JobTypeMirrorInvoice, pending, usercontext.GetUserID(c))
		if err != nil {
			return respond(c, adminPeriodURL(period), fiber.Map{"queued": queued}, "", err)
		}
		msg := fmt.Sprintf("%s: %d invoices queued for creation", period.Label(), queued)
		return respond(c, adminPeriodURL(period), fiber.Map{"queued": queued}, msg, nil)
	}

	summary, err := bc.Bridge.MirrorBatch(ctx, pending, period.Label())
	if err != nil {
		return respond(c, adminPeriodURL(period), summary, "", err)
	}
	msg := fmt.Sprintf("%s: %d invoices created, %d failed, total %s",
		period.Label(), len(summary.Success), len(summary.Errors), summary.TotalAmount.StringFixed(2))
	return respond(c, adminPeriodURL(period), summary, msg, nil)
}

// HandleSendExternalInvoice asks the provider to email the external invoice.
func (bc *BillingController) HandleSendExternalInvoice(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	if bc.Bridge == nil {
		return respond(c, adminBillURL(billID), nil, "", errNotConfigured)
	}
	ctx, cancel := requestContext(c, time.Minute)
	defer cancel()

	mirror, err := bc.Bridge.SendInvoice(ctx, billID)
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), mirror, "External invoice sent", nil)
}

// HandleSyncExternalInvoice refreshes the mirror from the provider.
func (bc *BillingController) HandleSyncExternalInvoice(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	if bc.Bridge == nil {
		return respond(c, adminBillURL(billID), nil, "", errNotConfigured)
	}
	ctx, cancel := requestContext(c, time.Minute)
	defer cancel()

	mirror, err := bc.Bridge.GetMirror(ctx, billID)
	if err == nil && !mirror.IsMirrored() {
		err = invoicing.ErrNotMirrored
	}
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	mirror, err = bc.Bridge.SyncInvoiceStatus(ctx, mirror.ExternalID())
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	return respond(c, adminBillURL(billID), mirror, "External invoice is "+mirror.Status, nil)
}

// HandleNotify emails the bill to its owner and marks it sent.
func (bc *BillingController) HandleNotify(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	if bc.Notifier == nil {
		return respond(c, adminBillURL(billID), nil, "", errNotConfigured)
	}
	ctx, cancel := requestContext(c, time.Minute)
	defer cancel()

	bill, err := bc.Service.Ledger.GetBill(ctx, billID)
	if err != nil {
		return respond(c, adminBillURL(billID), nil, "", err)
	}
	if !bc.Notifier.SendBillNotification(ctx, bill) {
		return respond(c, adminBillURL(billID), nil, "", billing.External("send bill notification", errors.New("notification was not delivered")))
	}
	return respond(c, adminBillURL(billID), fiber.Map{"bill_id": billID}, "Notification sent", nil)
}

// HandleNotifyPeriod emails every draft bill of a period.
func (bc *BillingController) HandleNotifyPeriod(c *fiber.Ctx) error {
	period, err := bc.periodFromRequest(c)
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	if bc.Notifier == nil {
		return respond(c, adminPeriodURL(period), nil, "", errNotConfigured)
	}
	ctx, cancel := requestContext(c, 10*time.Minute)
	defer cancel()

	bills, err := bc.Service.Ledger.ListBillsForPeriod(ctx, period)
	if err != nil {
		return respond(c, adminPeriodURL(period), nil, "", err)
	}
	if bc.runsInBackground(jobqueue.JobTypeBillNotification) {
		drafts := make([]models.Bill, 0, len(bills))
		for _, b := range bills {
			if b.BillStatus == models.BillStatusDraft {
				drafts = append(drafts, b)
			}
		}
		queued, err := bc.enqueueBills(ctx, jobqueue.JobTypeBillNotification, drafts, usercontext.GetUserID(c))
		if err != nil {
			return respond(c, adminPeriodURL(period), fiber.Map{"queued": queued}, "", err)
		}
		msg := fmt.Sprintf("%s: %d notifications queued", period.Label(), queued)
		return respond(c, adminPeriodURL(period), fiber.Map{"queued": queued}, msg, nil)
	}

	sent, failed := 0, 0
	for i := range bills {
		if bills[i].BillStatus != models.BillStatusDraft {
			continue
		}
		if bc.Notifier.SendBillNotification(ctx, &bills[i]) {
			sent++
		} else {
			failed++
		}
	}
	msg := fmt.Sprintf("%s: %d notifications sent, %d failed", period.Label(), sent, failed)
	return respond(c, adminPeriodURL(period), fiber.Map{"sent": sent, "failed": failed}, msg, nil)
}

// HandleOverdueSweep moves sent bills past their due date to overdue.
func (bc *BillingController) HandleOverdueSweep(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, 5*time.Minute)
	defer cancel()

	n, err := bc.Service.Ledger.MarkOverdue(ctx, bc.now())
	if err != nil {
		return respond(c, constants.AdminBillingRoute, nil, "", err)
	}
	return respond(c, constants.AdminBillingRoute, fiber.Map{"marked": n}, fmt.Sprintf("%d bills marked overdue", n), nil)
}

package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/cache"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/metrics"
)

const batchLockTTL = 15 * time.Minute

// Mirror results recorded in metrics.
const (
	resultCreated = "created"
	resultFailed  = "failed"
	resultSent    = "sent"
	resultSynced  = "synced"
)

// Bridge mirrors bills and their owners into the invoicing provider.
type Bridge struct {
	provider Provider
	repo     Repository
	users    billing.UserDirectory
	ledger   *billing.Ledger
	locker   cache.Locker
	cfg      billing.Config

	sleep  func(ctx context.Context, d time.Duration) error
	newKey func() string
	now    func() time.Time
}

// NewBridge creates a bridge. locker may be nil.
func NewBridge(provider Provider, repo Repository, users billing.UserDirectory, ledger *billing.Ledger, locker cache.Locker, cfg billing.Config) *Bridge {
	return &Bridge{
		provider: provider,
		repo:     repo,
		users:    users,
		ledger:   ledger,
		locker:   locker,
		cfg:      cfg,
		sleep:    sleepContext,
		newKey:   func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MirrorCustomer creates or updates the provider customer for user, matched
// by email. An existing customer whose user_id metadata names another user is
// never overwritten.
func (b *Bridge) MirrorCustomer(ctx context.Context, user *models.User) (*models.ExternalCustomer, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return nil, ErrMissingEmail
	}
	owner := strconv.FormatUint(uint64(user.ID), 10)
	in := CustomerInput{
		Email:    email,
		Name:     user.Name,
		Phone:    user.Phone,
		Metadata: map[string]string{"user_id": owner},
	}

	existing, err := b.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, billing.External("find customer", err)
	}

	var customer *Customer
	if existing != nil {
		if claimed := existing.Metadata["user_id"]; claimed != "" && claimed != owner {
			log.Errorf("[InvoiceBridge] Customer %s for %s is owned by user %s, refusing update for user %d",
				existing.ID, email, claimed, user.ID)
			return nil, fmt.Errorf("%w: customer %s", ErrOwnershipMismatch, existing.ID)
		}
		customer, err = b.provider.UpdateCustomer(ctx, existing.ID, in)
		if err != nil {
			return nil, billing.External("update customer", err)
		}
	} else {
		in.IdempotencyKey = "customer-" + owner + "-" + email
		customer, err = b.provider.CreateCustomer(ctx, in)
		if err != nil {
			return nil, billing.External("create customer", err)
		}
		log.Infof("[InvoiceBridge] Created customer %s for user %d", customer.ID, user.ID)
	}

	local := &models.ExternalCustomer{
		UserID:             user.ID,
		Provider:           b.provider.Name(),
		ExternalCustomerID: customer.ID,
		Email:              email,
	}
	if err := b.repo.UpsertCustomer(ctx, local); err != nil {
		return nil, err
	}
	return local, nil
}

// MirrorInvoice creates and finalizes the provider invoice for a bill. A
// pending mirror row carrying the idempotency key is stored before the first
// provider call, so a retry after a failure reuses the same provider objects
// instead of creating a second invoice. The invoice is not sent.
func (b *Bridge) MirrorInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	bill, err := b.ledger.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.BillStatus == models.BillStatusCancelled {
		return nil, ErrNotMirrorable
	}

	mirror, err := b.pendingMirror(ctx, bill)
	if err != nil {
		return mirror, err
	}

	if err := b.mirror(ctx, bill, mirror); err != nil {
		mirror.LastError = err.Error()
		if saveErr := b.repo.SaveInvoice(ctx, mirror); saveErr != nil {
			log.Errorf("[InvoiceBridge] Failed to record mirror error for bill %d: %v", bill.ID, saveErr)
		}
		metrics.Default().InvoiceMirrors.WithLabelValues(resultFailed).Inc()
		log.Warnf("[InvoiceBridge] Mirroring bill %d failed: %v", bill.ID, err)
		return nil, err
	}

	metrics.Default().InvoiceMirrors.WithLabelValues(resultCreated).Inc()
	log.Infof("[InvoiceBridge] Bill %d mirrored as %s (%s)", bill.ID, mirror.ExternalID(), mirror.Status)
	return mirror, nil
}

// pendingMirror returns the mirror row to work on. Finished mirrors are
// returned with ErrAlreadyMirrored.
func (b *Bridge) pendingMirror(ctx context.Context, bill *models.Bill) (*models.ExternalInvoice, error) {
	existing, err := b.repo.GetInvoiceByBill(ctx, bill.ID)
	if err == nil {
		if existing.Status == models.ExternalInvoicePending || existing.Status == models.ExternalInvoiceDraft {
			log.Infof("[InvoiceBridge] Resuming mirror of bill %d with key %s", bill.ID, existing.IdempotencyKey)
			return existing, nil
		}
		return existing, ErrAlreadyMirrored
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	mirror := &models.ExternalInvoice{
		BillID:         bill.ID,
		UserID:         bill.UserID,
		Provider:       b.provider.Name(),
		IdempotencyKey: b.newKey(),
		Status:         models.ExternalInvoicePending,
		AmountDue:      bill.TotalAmount,
		AmountPaid:     decimal.Zero,
	}
	b.pinDueDate(mirror, bill)
	if err := b.repo.CreateInvoice(ctx, mirror); err != nil {
		if billing.IsDuplicateKey(err) {
			return nil, ErrMirrorInProgress
		}
		return nil, err
	}
	return mirror, nil
}

// minDueLead is the shortest payment term sent to the provider. It also
// outlasts the provider's idempotency key retention.
const minDueLead = 24 * time.Hour

// pinDueDate stores the due date sent with the invoice request, so every
// retry under the same idempotency key sends identical parameters. The bill
// due date is used unless it is less than a day away.
func (b *Bridge) pinDueDate(mirror *models.ExternalInvoice, bill *models.Bill) {
	due := bill.DueDate.UTC()
	if earliest := b.now().UTC().Add(minDueLead); due.Before(earliest) {
		due = earliest
	}
	due = due.Truncate(time.Second)
	mirror.DueDate = &due
}

func (b *Bridge) mirror(ctx context.Context, bill *models.Bill, mirror *models.ExternalInvoice) error {
	user, err := b.users.GetByID(ctx, bill.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", bill.UserID, err)
	}
	customer, err := b.MirrorCustomer(ctx, user)
	if err != nil {
		return err
	}
	mirror.ExternalCustomerID = customer.ExternalCustomerID

	period := bill.PeriodLabel()
	key := mirror.IdempotencyKey
	inv, err := b.draftInvoice(ctx, bill, mirror, period)
	if err != nil {
		return err
	}
	if inv.Status != models.ExternalInvoiceDraft {
		// finalized by an earlier attempt whose result was never stored
		b.apply(mirror, inv)
		mirror.LastError = ""
		return b.repo.SaveInvoice(ctx, mirror)
	}
	b.apply(mirror, inv)
	if err := b.repo.SaveInvoice(ctx, mirror); err != nil {
		return err
	}

	present := make(map[string]bool, len(inv.Lines))
	for _, code := range inv.Lines {
		present[code] = true
	}
	for _, item := range lineItems(bill, period) {
		if present[item.Code] {
			continue
		}
		item.IdempotencyKey = key + ":item:" + item.Code
		if err := b.provider.AddInvoiceItem(ctx, inv, item); err != nil {
			return billing.External("add invoice item "+item.Code, err)
		}
	}

	finalized, err := b.provider.FinalizeInvoice(ctx, inv.ID, key+":finalize")
	if err != nil {
		return billing.External("finalize invoice", err)
	}
	b.apply(mirror, finalized)
	mirror.LastError = ""
	return b.repo.SaveInvoice(ctx, mirror)
}

// draftInvoice returns the provider invoice of a mirror. A mirror that already
// stores an invoice id is resumed from the provider; only a mirror without one
// creates an invoice.
func (b *Bridge) draftInvoice(ctx context.Context, bill *models.Bill, mirror *models.ExternalInvoice, period string) (*Invoice, error) {
	if mirror.IsMirrored() {
		inv, err := b.provider.GetInvoice(ctx, mirror.ExternalID())
		if err != nil {
			return nil, billing.External("get invoice", err)
		}
		log.Infof("[InvoiceBridge] Resuming invoice %s (%s) for bill %d", inv.ID, inv.Status, bill.ID)
		return inv, nil
	}

	if mirror.DueDate == nil || mirror.DueDate.Before(b.now()) {
		// a pinned date in the past is older than the idempotency key
		b.pinDueDate(mirror, bill)
	}
	inv, err := b.provider.CreateInvoice(ctx, InvoiceRequest{
		CustomerID:  mirror.ExternalCustomerID,
		Currency:    bill.Currency,
		Description: "Message billing for " + period,
		DueDate:     *mirror.DueDate,
		Metadata: map[string]string{
			"bill_id": strconv.FormatUint(uint64(bill.ID), 10),
			"user_id": strconv.FormatUint(uint64(bill.UserID), 10),
			"period":  period,
		},
		IdempotencyKey: mirror.IdempotencyKey + ":invoice",
	})
	if err != nil {
		return nil, billing.External("create invoice", err)
	}
	return inv, nil
}

// lineItems returns one line per non-zero fee category and a negative line
// for account credit.
func lineItems(bill *models.Bill, period string) []LineItem {
	var items []LineItem
	if bill.StandardFee.IsPositive() {
		items = append(items, LineItem{
			Code: "standard",
			Description: fmt.Sprintf("Message threads %s: %d (%d in business hours, %d outside)",
				period, bill.MessageCount, bill.InHoursCount, bill.OutOfHoursCount),
			Amount: ToMinorUnits(bill.StandardFee),
		})
	}
	if bill.ManualReviewFee.IsPositive() {
		items = append(items, LineItem{
			Code:        "manual_review",
			Description: fmt.Sprintf("Manual review %s: %d threads", period, bill.ManualReviewCount),
			Amount:      ToMinorUnits(bill.ManualReviewFee),
		})
	}
	if bill.SMSFee.IsPositive() {
		items = append(items, LineItem{
			Code:        "sms",
			Description: fmt.Sprintf("SMS notifications %s: %d", period, bill.SMSCount),
			Amount:      ToMinorUnits(bill.SMSFee),
		})
	}
	if bill.AccountCredit.IsPositive() {
		items = append(items, LineItem{
			Code:        "credit",
			Description: "Account credit",
			Amount:      -ToMinorUnits(bill.AccountCredit),
		})
	}
	return items
}

func (b *Bridge) apply(mirror *models.ExternalInvoice, inv *Invoice) {
	id := inv.ID
	mirror.ExternalInvoiceID = &id
	if inv.CustomerID != "" {
		mirror.ExternalCustomerID = inv.CustomerID
	}
	if inv.Status != "" {
		mirror.Status = inv.Status
	}
	mirror.AmountDue = FromMinorUnits(inv.AmountDue)
	mirror.AmountPaid = FromMinorUnits(inv.AmountPaid)
	if inv.HostedURL != "" {
		mirror.HostedURL = inv.HostedURL
	}
	if inv.PDFURL != "" {
		mirror.PDFURL = inv.PDFURL
	}
	if !inv.DueDate.IsZero() {
		due := inv.DueDate.UTC()
		mirror.DueDate = &due
	}
}

// GetMirror returns the external invoice of a bill.
func (b *Bridge) GetMirror(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	mirror, err := b.repo.GetInvoiceByBill(ctx, billID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return mirror, nil
}

// SendInvoice asks the provider to email a finalized invoice to the customer.
func (b *Bridge) SendInvoice(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	mirror, err := b.GetMirror(ctx, billID)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil, ErrNotMirrored
		}
		return nil, err
	}
	if !mirror.IsMirrored() || mirror.Status == models.ExternalInvoicePending || mirror.Status == models.ExternalInvoiceDraft {
		return nil, ErrNotMirrored
	}

	inv, err := b.provider.SendInvoice(ctx, mirror.ExternalID())
	if err != nil {
		log.Warnf("[InvoiceBridge] Sending invoice %s for bill %d failed: %v", mirror.ExternalID(), billID, err)
		return nil, billing.External("send invoice", err)
	}
	b.apply(mirror, inv)
	if err := b.repo.SaveInvoice(ctx, mirror); err != nil {
		return nil, err
	}
	metrics.Default().InvoiceMirrors.WithLabelValues(resultSent).Inc()
	log.Infof("[InvoiceBridge] Invoice %s for bill %d sent", mirror.ExternalID(), billID)
	return mirror, nil
}

// SyncInvoiceStatus refreshes a mirror from the provider.
func (b *Bridge) SyncInvoiceStatus(ctx context.Context, externalInvoiceID string) (*models.ExternalInvoice, error) {
	inv, err := b.provider.GetInvoice(ctx, externalInvoiceID)
	if err != nil {
		return nil, billing.External("get invoice", err)
	}
	return b.ApplyInvoice(ctx, inv)
}

// ApplyInvoice stores a provider invoice state on its mirror. When the
// provider reports the invoice paid the local bill is marked paid as well.
func (b *Bridge) ApplyInvoice(ctx context.Context, inv *Invoice) (*models.ExternalInvoice, error) {
	mirror, err := b.repo.GetInvoiceByExternalID(ctx, inv.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, inv.ID)
		}
		return nil, err
	}
	b.apply(mirror, inv)
	if err := b.repo.SaveInvoice(ctx, mirror); err != nil {
		return nil, err
	}
	metrics.Default().InvoiceMirrors.WithLabelValues(resultSynced).Inc()

	if mirror.Status == models.ExternalInvoicePaid {
		if err := b.markBillPaid(ctx, mirror); err != nil {
			return mirror, err
		}
	}
	return mirror, nil
}

func (b *Bridge) markBillPaid(ctx context.Context, mirror *models.ExternalInvoice) error {
	bill, err := b.ledger.GetBill(ctx, mirror.BillID)
	if err != nil {
		if errors.Is(err, billing.ErrBillNotFound) {
			log.Warnf("[InvoiceBridge] Invoice %s paid but bill %d no longer exists", mirror.ExternalID(), mirror.BillID)
			return nil
		}
		return err
	}
	switch bill.BillStatus {
	case models.BillStatusPaid:
		return nil
	case models.BillStatusCancelled:
		log.Warnf("[InvoiceBridge] Invoice %s paid but bill %d is cancelled", mirror.ExternalID(), bill.ID)
		return nil
	case models.BillStatusDraft:
		if _, err := b.ledger.MarkSent(ctx, bill.ID, b.now().UTC()); err != nil {
			return err
		}
	}
	_, err = b.ledger.UpdateStatus(ctx, bill.ID, billing.StatusUpdate{
		Status:           models.BillStatusPaid,
		PaymentMethod:    b.provider.Name(),
		PaymentReference: mirror.ExternalID(),
	})
	if err != nil {
		return err
	}
	log.Infof("[InvoiceBridge] Bill %d marked paid from invoice %s", bill.ID, mirror.ExternalID())
	return nil
}

// BatchItem is a successfully mirrored bill.
type BatchItem struct {
	BillID            uint            `json:"bill_id"`
	UserID            uint            `json:"user_id"`
	ExternalInvoiceID string          `json:"external_invoice_id"`
	HostedURL         string          `json:"hosted_url"`
	Amount            decimal.Decimal `json:"amount"`
}

// BatchError is a bill that could not be mirrored.
type BatchError struct {
	BillID uint   `json:"bill_id"`
	UserID uint   `json:"user_id"`
	Error  string `json:"error"`
}

// BatchSummary is the outcome of MirrorBatch. TotalAmount sums the
// successfully mirrored bills.
type BatchSummary struct {
	Period         string          `json:"period"`
	Success        []BatchItem     `json:"success"`
	Errors         []BatchError    `json:"errors"`
	TotalProcessed int             `json:"total_processed"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// MirrorBatch mirrors bills one after another with a pause between provider
// calls. A failing bill is recorded and the batch continues. Batches above
// the configured limit are rejected before any call is made.
func (b *Bridge) MirrorBatch(ctx context.Context, bills []models.Bill, periodLabel string) (*BatchSummary, error) {
	if limit := b.cfg.MirrorBatchLimit; limit > 0 && len(bills) > limit {
		return nil, fmt.Errorf("%w: %d bills, limit %d", ErrBatchTooLarge, len(bills), limit)
	}
	if b.locker != nil {
		lock, err := b.locker.Acquire(ctx, "billing:mirror:"+periodLabel, batchLockTTL)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				return nil, ErrBatchInProgress
			}
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warnf("[InvoiceBridge] Failed to release batch lock for %s: %v", periodLabel, err)
			}
		}()
	}

	summary := &BatchSummary{
		Period:      periodLabel,
		Success:     []BatchItem{},
		Errors:      []BatchError{},
		TotalAmount: decimal.Zero,
	}
	for i := range bills {
		if i > 0 {
			if err := b.sleep(ctx, b.cfg.MirrorDelay); err != nil {
				return summary, err
			}
		}
		bill := &bills[i]
		summary.TotalProcessed++

		mirror, err := b.MirrorInvoice(ctx, bill.ID)
		if err != nil {
			summary.Errors = append(summary.Errors, BatchError{BillID: bill.ID, UserID: bill.UserID, Error: err.Error()})
			continue
		}
		summary.Success = append(summary.Success, BatchItem{
			BillID:            bill.ID,
			UserID:            bill.UserID,
			ExternalInvoiceID: mirror.ExternalID(),
			HostedURL:         mirror.HostedURL,
			Amount:            bill.TotalAmount,
		})
		summary.TotalAmount = summary.TotalAmount.Add(bill.TotalAmount)
	}

	log.Infof("[InvoiceBridge] Batch %s: %d mirrored, %d failed, total %s", periodLabel,
		len(summary.Success), len(summary.Errors), summary.TotalAmount.StringFixed(2))
	return summary, nil
}

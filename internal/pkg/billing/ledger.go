package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger owns bills: creation, status changes, credits and deletion.
type Ledger struct {
	repo Repository
	tx   repository.TransactionManager
	cfg  Config
	now  func() time.Time
}

// NewLedger creates a ledger.
func NewLedger(repo Repository, tx repository.TransactionManager, cfg Config) *Ledger {
	return &Ledger{repo: repo, tx: tx, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// CreateBillInput describes a bill to create. Actor is the user performing
// the action, zero for system runs.
type CreateBillInput struct {
	UserID uint
	Period Period
	Counts Counts
	Fees   FeeBreakdown
	Actor  uint
	Notes  string
}

// CreateBill stores a draft bill for the user and period. When a bill already
// exists for that exact period it returns the existing bill with ErrBillExists.
func (l *Ledger) CreateBill(ctx context.Context, in CreateBillInput) (*models.Bill, error) {
	if in.UserID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := in.Period.Validate(); err != nil {
		return nil, err
	}
	if err := in.Counts.Validate(); err != nil {
		return nil, err
	}
	if err := in.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("%w: inconsistent fee breakdown", err)
	}

	existing, err := l.repo.FindBillForPeriod(ctx, in.UserID, in.Period.Start, in.Period.End)
	if err == nil {
		return l.conflict(existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	currency := in.Fees.Currency
	if currency == "" {
		currency = l.cfg.Pricing.Currency
	}
	bill := &models.Bill{
		UserID:             in.UserID,
		BillingPeriodStart: in.Period.Start,
		BillingPeriodEnd:   in.Period.End,
		MessageCount:       in.Counts.TotalThreads,
		InHoursCount:       in.Counts.InHoursThreads,
		OutOfHoursCount:    in.Counts.OutOfHoursThreads,
		ManualReviewCount:  in.Counts.ManualReviewThreads,
		SMSCount:           in.Counts.SMSCount,
		StandardFee:        in.Fees.StandardFee,
		ManualReviewFee:    in.Fees.ManualReviewFee,
		SMSFee:             in.Fees.SMSFee,
		AccountCredit:      decimal.Zero,
		Currency:           currency,
		PricingVersion:     in.Fees.PricingVersion,
		BillStatus:         models.BillStatusDraft,
		DueDate:            in.Period.End.AddDate(0, 0, l.cfg.NetDays),
		Notes:              strings.TrimSpace(in.Notes),
		CreatedBy:          in.Actor,
	}
	bill.RecalculateTotal()
	if err := bill.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := l.repo.CreateBill(ctx, bill); err != nil {
		if IsDuplicateKey(err) {
			// lost the race against a concurrent create
			existing, findErr := l.repo.FindBillForPeriod(ctx, in.UserID, in.Period.Start, in.Period.End)
			if findErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrBillExists, findErr)
			}
			return l.conflict(existing)
		}
		return nil, err
	}

	metrics.Default().BillsCreated.Inc()
	log.Infof("[BillLedger] Created bill %d for user %d (%s): total %s %s", bill.ID, bill.UserID,
		in.Period.Label(), bill.TotalAmount.StringFixed(2), strings.ToUpper(bill.Currency))
	return bill, nil
}

func (l *Ledger) conflict(existing *models.Bill) (*models.Bill, error) {
	metrics.Default().BillConflicts.Inc()
	log.Infof("[BillLedger] Bill %d already exists for user %d (%s)", existing.ID, existing.UserID, existing.PeriodLabel())
	return existing, ErrBillExists
}

// StatusUpdate describes a status change. PaymentDate defaults to now when
// marking a bill paid; At defaults to now and stamps SentAt for sent bills.
type StatusUpdate struct {
	Status           string
	PaymentDate      *time.Time
	PaymentMethod    string
	PaymentReference string
	At               time.Time
	Actor            uint
}

// UpdateStatus moves a bill through its lifecycle under a row lock. Setting
// the status a bill already has is a no-op.
func (l *Ledger) UpdateStatus(ctx context.Context, billID uint, upd StatusUpdate) (*models.Bill, error) {
	status := strings.ToLower(strings.TrimSpace(upd.Status))
	if !models.IsValidBillStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, upd.Status)
	}
	at := upd.At
	if at.IsZero() {
		at = l.now()
	}

	var out *models.Bill
	err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		bill, err := l.lockBill(txCtx, billID)
		if err != nil {
			return err
		}
		out = bill
		if bill.BillStatus == status {
			return nil
		}
		if !models.CanTransitionBill(bill.BillStatus, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, bill.BillStatus, status)
		}

		from := bill.BillStatus
		bill.BillStatus = status
		switch status {
		case models.BillStatusSent:
			sentAt := at.UTC()
			bill.SentAt = &sentAt
		case models.BillStatusPaid:
			paid := at.UTC()
			if upd.PaymentDate != nil {
				paid = upd.PaymentDate.UTC()
			}
			bill.PaymentDate = &paid
			bill.PaymentMethod = strings.TrimSpace(upd.PaymentMethod)
			bill.PaymentReference = strings.TrimSpace(upd.PaymentReference)
		}
		bill.AppendNote(at, fmt.Sprintf("Status changed from %s to %s by %s", from, status, actorLabel(upd.Actor)))
		return l.repo.SaveBill(txCtx, bill)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[BillLedger] Bill %d status is now %s", out.ID, out.BillStatus)
	return out, nil
}

// MarkSent records that the bill notification went out at the given time.
func (l *Ledger) MarkSent(ctx context.Context, billID uint, at time.Time) (*models.Bill, error) {
	return l.UpdateStatus(ctx, billID, StatusUpdate{Status: models.BillStatusSent, At: at})
}

// MarkOverdue moves every sent bill whose due date lies before now's date to
// overdue and returns how many changed.
func (l *Ledger) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	today := dateOf(now.In(l.location()))
	bills, err := l.repo.ListSentPastDue(ctx, today)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bills {
		if _, err := l.UpdateStatus(ctx, b.ID, StatusUpdate{Status: models.BillStatusOverdue, At: now}); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// paid or cancelled since listing
				continue
			}
			return n, err
		}
		n++
	}
	if n > 0 {
		log.Infof("[BillLedger] Marked %d bills overdue", n)
	}
	return n, nil
}

// ApplyCredit adds amount to the bill's account credit, lowers the total and
// appends an audit note. The credit may not exceed the outstanding total.
func (l *Ledger) ApplyCredit(ctx context.Context, billID uint, amount decimal.Decimal, reason string, actor uint) (*models.Bill, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidCredit)
	}
	if !amount.Round(2).Equal(amount) {
		return nil, fmt.Errorf("%w: amount has more than two decimal places", ErrInvalidCredit)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}

	var out *models.Bill
	err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		bill, err := l.lockBill(txCtx, billID)
		if err != nil {
			return err
		}
		if bill.IsSettled() {
			return fmt.Errorf("%w: bill %d is %s", ErrBillSettled, bill.ID, bill.BillStatus)
		}
		mirror, err := l.mirrorOf(txCtx, bill.ID)
		if err != nil {
			return err
		}
		if mirror != nil && mirror.Status != models.ExternalInvoiceVoid {
			// the provider invoice carries the old total
			log.Warnf("[BillLedger] Refusing credit on bill %d, external invoice is %s", bill.ID, mirror.Status)
			return fmt.Errorf("%w: external invoice is %s", ErrBillMirrored, mirror.Status)
		}
		if amount.GreaterThan(bill.TotalAmount) {
			return fmt.Errorf("%w: %s exceeds outstanding total %s", ErrInvalidCredit,
				amount.StringFixed(2), bill.TotalAmount.StringFixed(2))
		}

		bill.AccountCredit = bill.AccountCredit.Add(amount)
		bill.RecalculateTotal()
		bill.AppendNote(l.now(), fmt.Sprintf("Credit of %s %s applied by %s: %s",
			amount.StringFixed(2), strings.ToUpper(bill.Currency), actorLabel(actor), reason))
		out = bill
		return l.repo.SaveBill(txCtx, bill)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[BillLedger] Applied credit %s to bill %d", amount.StringFixed(2), billID)
	return out, nil
}

// DeleteBill removes the bill's invoice links, its unfinished external
// invoice record and then the bill in one transaction. Bills whose external
// invoice was finalized are refused, since that invoice can still be paid.
// Linked documents stay in the document store.
func (l *Ledger) DeleteBill(ctx context.Context, billID uint, actor uint) error {
	var removed int64
	err := l.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := l.lockBill(txCtx, billID); err != nil {
			return err
		}
		mirror, err := l.mirrorOf(txCtx, billID)
		if err != nil {
			return err
		}
		if mirror != nil {
			if mirror.IsFinalized() {
				return fmt.Errorf("%w: external invoice %s is %s", ErrBillMirrored, mirror.ExternalID(), mirror.Status)
			}
			if _, err := l.repo.DeleteExternalInvoice(txCtx, billID); err != nil {
				return fmt.Errorf("delete external invoice: %w", err)
			}
		}
		n, err := l.repo.DeleteLinksForBill(txCtx, billID)
		if err != nil {
			return fmt.Errorf("delete invoice links: %w", err)
		}
		removed = n
		if err := l.repo.DeleteBill(txCtx, billID); err != nil {
			return fmt.Errorf("delete bill: %w", err)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == KindFault {
			log.Errorf("[BillLedger] Deleting bill %d rolled back: %v", billID, err)
		}
		return err
	}
	log.Infof("[BillLedger] Bill %d deleted by %s with %d invoice links", billID, actorLabel(actor), removed)
	return nil
}

// GetBill loads a bill.
func (l *Ledger) GetBill(ctx context.Context, billID uint) (*models.Bill, error) {
	bill, err := l.repo.GetBill(ctx, billID)
	if err != nil {
		return nil, notFound(err, ErrBillNotFound)
	}
	return bill, nil
}

// ListBills returns a user's bills, newest period first.
func (l *Ledger) ListBills(ctx context.Context, userID uint) ([]models.Bill, error) {
	return l.repo.ListBillsByUser(ctx, userID)
}

// ListBillsForPeriod returns all bills of the exact period.
func (l *Ledger) ListBillsForPeriod(ctx context.Context, period Period) ([]models.Bill, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	return l.repo.ListBillsForPeriod(ctx, period.Start, period.End)
}

// mirrorOf returns the bill's external invoice record, or nil when it has none.
func (l *Ledger) mirrorOf(ctx context.Context, billID uint) (*models.ExternalInvoice, error) {
	mirror, err := l.repo.FindExternalInvoice(ctx, billID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return mirror, err
}

func (l *Ledger) lockBill(ctx context.Context, billID uint) (*models.Bill, error) {
	bill, err := l.repo.GetBillForUpdate(ctx, billID)
	if err != nil {
		return nil, notFound(err, ErrBillNotFound)
	}
	return bill, nil
}

func (l *Ledger) location() *time.Location {
	if l.cfg.Location == nil {
		return time.UTC
	}
	return l.cfg.Location
}

func notFound(err error, sentinel *Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func actorLabel(actor uint) string {
	if actor == 0 {
		return "system"
	}
	return fmt.Sprintf("user %d", actor)
}

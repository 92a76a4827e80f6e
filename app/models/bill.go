package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Bill statuses.
const (
	BillStatusDraft     = "draft"
	BillStatusSent      = "sent"
	BillStatusPaid      = "paid"
	BillStatusOverdue   = "overdue"
	BillStatusCancelled = "cancelled"
)

// billTransitions lists the statuses reachable from each status.
var billTransitions = map[string][]string{
	BillStatusDraft:   {BillStatusSent, BillStatusCancelled},
	BillStatusSent:    {BillStatusPaid, BillStatusOverdue, BillStatusCancelled},
	BillStatusOverdue: {BillStatusPaid, BillStatusCancelled},
}

// IsValidBillStatus reports whether status is a known bill status.
func IsValidBillStatus(status string) bool {
	switch status {
	case BillStatusDraft, BillStatusSent, BillStatusPaid, BillStatusOverdue, BillStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionBill reports whether a bill may move from one status to another.
func CanTransitionBill(from, to string) bool {
	for _, next := range billTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Bill is the monthly charge for one user and one billing period.
type Bill struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	UserID             uint            `gorm:"not null;index:ux_bills_user_period,unique,priority:1;index" json:"user_id" validate:"required"`
	BillingPeriodStart time.Time       `gorm:"type:date;not null;index:ux_bills_user_period,unique,priority:2" json:"billing_period_start" validate:"required"`
	BillingPeriodEnd   time.Time       `gorm:"type:date;not null;index:ux_bills_user_period,unique,priority:3" json:"billing_period_end" validate:"required,gtefield=BillingPeriodStart"`
	MessageCount       int             `gorm:"not null;default:0" json:"message_count" validate:"gte=0"`
	InHoursCount       int             `gorm:"not null;default:0" json:"in_hours_count" validate:"gte=0"`
	OutOfHoursCount    int             `gorm:"not null;default:0" json:"out_of_hours_count" validate:"gte=0"`
	ManualReviewCount  int             `gorm:"not null;default:0" json:"manual_review_count" validate:"gte=0"`
	SMSCount           int             `gorm:"column:sms_count;not null;default:0" json:"sms_count" validate:"gte=0"`
	StandardFee        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"standard_fee"`
	ManualReviewFee    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"manual_review_fee"`
	SMSFee             decimal.Decimal `gorm:"column:sms_fee;type:decimal(12,2);not null;default:0" json:"sms_fee"`
	AccountCredit      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"account_credit"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_amount"`
	Currency           string          `gorm:"type:varchar(3);not null;default:'aud'" json:"currency"`
	PricingVersion     string          `gorm:"type:varchar(32);not null;default:''" json:"pricing_version"`
	BillStatus         string          `gorm:"type:varchar(20);not null;default:'draft';index" json:"bill_status" validate:"oneof=draft sent paid overdue cancelled"`
	DueDate            time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	SentAt             *time.Time      `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	PaymentDate        *time.Time      `gorm:"type:timestamp;default:null" json:"payment_date,omitempty"`
	PaymentMethod      string          `gorm:"type:varchar(50);default:''" json:"payment_method"`
	PaymentReference   string          `gorm:"type:varchar(191);default:''" json:"payment_reference"`
	Notes              string          `gorm:"type:text" json:"notes"`
	CreatedBy          uint            `gorm:"not null;default:0" json:"created_by"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	User     *User             `gorm:"foreignKey:UserID" json:"-"`
	Invoices []InvoiceDocument `gorm:"foreignKey:BillID" json:"invoices,omitempty"`
}

func (b *Bill) Validate() error {
	v := validator.New()

	return v.Struct(b)
}

// FeeSubtotal is the sum of all fee categories before credits.
func (b *Bill) FeeSubtotal() decimal.Decimal {
	return b.StandardFee.Add(b.ManualReviewFee).Add(b.SMSFee)
}

// RecalculateTotal sets TotalAmount to the fee subtotal minus account credit.
func (b *Bill) RecalculateTotal() {
	b.TotalAmount = b.FeeSubtotal().Sub(b.AccountCredit)
}

// EffectiveStatus returns overdue for every open bill whose due date has
// passed, drafts included. The stored status is left to the overdue sweep.
func (b *Bill) EffectiveStatus(now time.Time) string {
	if !b.IsSettled() && b.DueDate.Before(now) {
		return BillStatusOverdue
	}
	return b.BillStatus
}

// IsSettled reports whether the bill no longer accepts changes to its amounts.
func (b *Bill) IsSettled() bool {
	return b.BillStatus == BillStatusPaid || b.BillStatus == BillStatusCancelled
}

// AppendNote adds a timestamped audit line to the bill notes.
func (b *Bill) AppendNote(at time.Time, line string) {
	entry := fmt.Sprintf("[%s] %s", at.UTC().Format("2006-01-02 15:04:05"), strings.TrimSpace(line))
	if strings.TrimSpace(b.Notes) == "" {
		b.Notes = entry
		return
	}
	b.Notes = b.Notes + "\n" + entry
}

// PeriodLabel renders the billing period for humans, e.g. "January 2026".
func (b *Bill) PeriodLabel() string {
	start, end := b.BillingPeriodStart, b.BillingPeriodEnd
	if start.Day() == 1 && end.Equal(start.AddDate(0, 1, -1)) {
		return start.Format("January 2006")
	}
	return fmt.Sprintf("%s to %s", start.Format("2 Jan 2006"), end.Format("2 Jan 2006"))
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// External invoice states. Pending marks a mirror whose provider call has not
// completed yet; the remaining values follow the provider's invoice status.
const (
	ExternalInvoicePending       = "pending"
	ExternalInvoiceDraft         = "draft"
	ExternalInvoiceOpen          = "open"
	ExternalInvoicePaid          = "paid"
	ExternalInvoiceVoid          = "void"
	ExternalInvoiceUncollectible = "uncollectible"
	ExternalInvoiceFailed        = "failed"
)

// ExternalInvoice is the provider-side shadow of a Bill. The local Bill stays
// authoritative for amounts owed.
type ExternalInvoice struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	BillID             uint            `gorm:"not null;uniqueIndex:ux_external_invoices_bill" json:"bill_id"`
	UserID             uint            `gorm:"not null;index" json:"user_id"`
	Provider           string          `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ExternalCustomerID string          `gorm:"type:varchar(191);not null;default:''" json:"external_customer_id"`
	ExternalInvoiceID  *string         `gorm:"type:varchar(191);default:null;uniqueIndex:ux_external_invoices_external_id" json:"external_invoice_id"`
	IdempotencyKey     string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	Status             string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AmountDue          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_due"`
	AmountPaid         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_paid"`
	HostedURL          string          `gorm:"type:varchar(500);default:''" json:"hosted_url"`
	PDFURL             string          `gorm:"column:pdf_url;type:varchar(500);default:''" json:"pdf_url"`
	DueDate            *time.Time      `gorm:"type:timestamp;default:null" json:"due_date,omitempty"`
	LastError          string          `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ExternalID returns the provider invoice id or an empty string while pending.
func (e *ExternalInvoice) ExternalID() string {
	if e.ExternalInvoiceID == nil {
		return ""
	}
	return *e.ExternalInvoiceID
}

// IsMirrored reports whether the provider invoice was created.
func (e *ExternalInvoice) IsMirrored() bool {
	return e.ExternalID() != ""
}

// IsFinalized reports whether the provider invoice can be paid or already was.
func (e *ExternalInvoice) IsFinalized() bool {
	switch e.Status {
	case ExternalInvoiceOpen, ExternalInvoicePaid, ExternalInvoiceUncollectible:
		return true
	default:
		return false
	}
}

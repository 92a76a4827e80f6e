package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice document types.
const (
	InvoiceTypeGenerated      = "generated"
	InvoiceTypePaymentReceipt = "payment_receipt"
	InvoiceTypeCreditNote     = "credit_note"
)

// IsValidInvoiceType reports whether t is one of the enumerated invoice types.
func IsValidInvoiceType(t string) bool {
	switch t {
	case InvoiceTypeGenerated, InvoiceTypePaymentReceipt, InvoiceTypeCreditNote:
		return true
	default:
		return false
	}
}

// primarySlotValue marks the single primary row of a bill. Non-primary rows keep a
// NULL slot, which the unique index ignores.
var primarySlotValue uint8 = 1

// PrimarySlotFor returns the slot value stored for the given primary flag.
func PrimarySlotFor(isPrimary bool) *uint8 {
	if !isPrimary {
		return nil
	}
	v := primarySlotValue
	return &v
}

// InvoiceDocument links a stored Document to a Bill as a typed invoice.
type InvoiceDocument struct {
	ID               uint                `gorm:"primaryKey" json:"id"`
	BillID           uint                `gorm:"not null;index:ux_invoice_documents_bill_document,unique,priority:1;index:ux_invoice_documents_primary,unique,priority:1" json:"bill_id"`
	DocumentID       uint                `gorm:"not null;index:ux_invoice_documents_bill_document,unique,priority:2;index" json:"document_id"`
	InvoiceType      string              `gorm:"type:varchar(32);not null;default:'generated'" json:"invoice_type"`
	InvoiceNumber    string              `gorm:"type:varchar(100);default:''" json:"invoice_number"`
	InvoiceAmount    decimal.NullDecimal `gorm:"type:decimal(12,2);default:null" json:"invoice_amount"`
	IsPrimaryInvoice bool                `gorm:"not null;default:false" json:"is_primary_invoice"`
	PrimarySlot      *uint8              `gorm:"default:null;index:ux_invoice_documents_primary,unique,priority:2" json:"-"`
	UploadedBy       uint                `gorm:"not null;default:0" json:"uploaded_by"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`

	Document *Document `gorm:"foreignKey:DocumentID" json:"document,omitempty"`
}

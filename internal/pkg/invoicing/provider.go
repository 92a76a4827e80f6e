// Package invoicing mirrors local bills into a hosted invoicing provider so
// talents can pay them online. The local bill stays authoritative.
package invoicing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a provider-side customer record.
type Customer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

// CustomerInput describes the customer fields the portal owns.
type CustomerInput struct {
	Email          string
	Name           string
	Phone          string
	Metadata       map[string]string
	IdempotencyKey string
}

// Invoice is a provider-side invoice. Amounts are in minor currency units.
type Invoice struct {
	ID         string
	CustomerID string
	Status     string
	Currency   string
	AmountDue  int64
	AmountPaid int64
	HostedURL  string
	PDFURL     string
	DueDate    time.Time
	Metadata   map[string]string

	// Lines holds the line codes of the items already on the invoice.
	Lines []string
}

// InvoiceRequest describes a draft invoice to create.
type InvoiceRequest struct {
	CustomerID     string
	Currency       string
	Description    string
	DueDate        time.Time
	Metadata       map[string]string
	IdempotencyKey string
}

// LineItem is one invoice line. Credits carry a negative amount.
type LineItem struct {
	Code           string
	Description    string
	Amount         int64
	IdempotencyKey string
}

// Provider is the hosted invoicing API.
type Provider interface {
	Name() string
	// FindCustomerByEmail returns nil without error when no customer exists.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error)
	UpdateCustomer(ctx context.Context, id string, in CustomerInput) (*Customer, error)
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	AddInvoiceItem(ctx context.Context, inv *Invoice, item LineItem) error
	FinalizeInvoice(ctx context.Context, id, idempotencyKey string) (*Invoice, error)
	SendInvoice(ctx context.Context, id string) (*Invoice, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
}

// ToMinorUnits converts a two-decimal amount to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts cents to a two-decimal amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

package invoicing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

const stripeTimeout = 15 * time.Second

// StripeProvider implements Provider on the Stripe API. It uses its own
// client.API instead of the package-level stripe globals.
type StripeProvider struct {
	client *client.API
}

// NewStripeProvider creates a provider for secretKey. Network retries are
// disabled: a failed call fails the operation.
func NewStripeProvider(secretKey string) *StripeProvider {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: stripeTimeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	sc := &client.API{}
	sc.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})
	return &StripeProvider{client: sc}
}

// NewStripeProviderFromEnv reads STRIPE_SECRET_KEY.
func NewStripeProviderFromEnv() (*StripeProvider, error) {
	key := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	if key == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not set")
	}
	return NewStripeProvider(key), nil
}

func (p *StripeProvider) Name() string {
	return models.BillingProviderStripe
}

func (p *StripeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := p.client.Customers.List(params)
	if it.Next() {
		return customerFromStripe(it.Customer()), nil
	}
	if err := it.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return nil, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	params := customerParams(in)
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(in.IdempotencyKey)
	}
	c, err := p.client.Customers.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return customerFromStripe(c), nil
}

func (p *StripeProvider) UpdateCustomer(ctx context.Context, id string, in CustomerInput) (*Customer, error) {
	params := customerParams(in)
	params.Context = ctx
	c, err := p.client.Customers.Update(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return customerFromStripe(c), nil
}

func customerParams(in CustomerInput) *stripe.CustomerParams {
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
	}
	if in.Phone != "" {
		params.Phone = stripe.String(in.Phone)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

// CreateInvoice creates a draft invoice that only contains items added to it
// explicitly. Invoices are sent by email from Stripe. Without a due date the
// term is one day.
func (p *StripeProvider) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	params := &stripe.InvoiceParams{
		Customer:                    stripe.String(req.CustomerID),
		Currency:                    stripe.String(req.Currency),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		AutoAdvance:                 stripe.Bool(false),
		PendingInvoiceItemsBehavior: stripe.String("exclude"),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if !req.DueDate.IsZero() {
		params.DueDate = stripe.Int64(req.DueDate.Unix())
	} else {
		params.DaysUntilDue = stripe.Int64(1)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}

	inv, err := p.client.Invoices.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return invoiceFromStripe(inv), nil
}

func (p *StripeProvider) AddInvoiceItem(ctx context.Context, inv *Invoice, item LineItem) error {
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(inv.CustomerID),
		Invoice:     stripe.String(inv.ID),
		Amount:      stripe.Int64(item.Amount),
		Currency:    stripe.String(inv.Currency),
		Description: stripe.String(item.Description),
	}
	params.AddMetadata("line", item.Code)
	params.Context = ctx
	if item.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(item.IdempotencyKey)
	}
	if _, err := p.client.InvoiceItems.New(params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (p *StripeProvider) FinalizeInvoice(ctx context.Context, id, idempotencyKey string) (*Invoice, error) {
	params := &stripe.InvoiceFinalizeInvoiceParams{AutoAdvance: stripe.Bool(false)}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}
	inv, err := p.client.Invoices.FinalizeInvoice(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return invoiceFromStripe(inv), nil
}

func (p *StripeProvider) SendInvoice(ctx context.Context, id string) (*Invoice, error) {
	params := &stripe.InvoiceSendInvoiceParams{}
	params.Context = ctx
	inv, err := p.client.Invoices.SendInvoice(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return invoiceFromStripe(inv), nil
}

func (p *StripeProvider) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := p.client.Invoices.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return invoiceFromStripe(inv), nil
}

func customerFromStripe(c *stripe.Customer) *Customer {
	if c == nil {
		return nil
	}
	return &Customer{ID: c.ID, Email: c.Email, Name: c.Name, Metadata: c.Metadata}
}

func invoiceFromStripe(inv *stripe.Invoice) *Invoice {
	if inv == nil {
		return nil
	}
	out := &Invoice{
		ID:         inv.ID,
		Status:     string(inv.Status),
		Currency:   string(inv.Currency),
		AmountDue:  inv.AmountDue,
		AmountPaid: inv.AmountPaid,
		HostedURL:  inv.HostedInvoiceURL,
		PDFURL:     inv.InvoicePDF,
		Metadata:   inv.Metadata,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.DueDate > 0 {
		out.DueDate = time.Unix(inv.DueDate, 0).UTC()
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if code := line.Metadata["line"]; code != "" {
				out.Lines = append(out.Lines, code)
			}
		}
	}
	return out
}

// mapStripeError keeps the Stripe error code and message readable in logs
// and bill notes.
func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("stripe unavailable (status %d): %w", stripeErr.HTTPStatusCode, err)
		case stripeErr.Code == stripe.ErrorCodeIdempotencyKeyInUse:
			return fmt.Errorf("stripe idempotency key in use: %w", err)
		case stripeErr.Code != "":
			return fmt.Errorf("stripe %s: %s: %w", stripeErr.Code, stripeErr.Msg, err)
		}
	}
	return fmt.Errorf("stripe: %w", err)
}

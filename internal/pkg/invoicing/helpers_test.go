package invoicing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/testutil"
)

type fakeProvider struct {
	customers map[string]*Customer
	invoices  map[string]*Invoice
	items     map[string][]LineItem
	keys      map[string]string

	failCreateForBill map[string]bool
	failFinalize      int
	updates           int
	seq               int
	requests          []InvoiceRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customers:         map[string]*Customer{},
		invoices:          map[string]*Invoice{},
		items:             map[string][]LineItem{},
		keys:              map[string]string{},
		failCreateForBill: map[string]bool{},
	}
}

func (p *fakeProvider) Name() string { return models.BillingProviderStripe }

func (p *fakeProvider) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%03d", prefix, p.seq)
}

func (p *fakeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	return p.customers[email], nil
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	if id, ok := p.keys[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		for _, c := range p.customers {
			if c.ID == id {
				return c, nil
			}
		}
	}
	c := &Customer{ID: p.next("cus"), Email: in.Email, Name: in.Name, Metadata: in.Metadata}
	p.customers[in.Email] = c
	p.keys[in.IdempotencyKey] = c.ID
	return c, nil
}

func (p *fakeProvider) UpdateCustomer(ctx context.Context, id string, in CustomerInput) (*Customer, error) {
	p.updates++
	c := p.customers[in.Email]
	c.Name = in.Name
	c.Metadata = in.Metadata
	return c, nil
}

func (p *fakeProvider) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if p.failCreateForBill[req.Metadata["bill_id"]] {
		return nil, errors.New("card_declined")
	}
	p.requests = append(p.requests, req)
	if id, ok := p.keys[req.IdempotencyKey]; ok {
		return p.copyOf(id), nil
	}
	inv := &Invoice{
		ID:         p.next("in"),
		CustomerID: req.CustomerID,
		Status:     models.ExternalInvoiceDraft,
		Currency:   req.Currency,
		DueDate:    req.DueDate,
		Metadata:   req.Metadata,
	}
	p.invoices[inv.ID] = inv
	p.keys[req.IdempotencyKey] = inv.ID
	return p.copyOf(inv.ID), nil
}

func (p *fakeProvider) AddInvoiceItem(ctx context.Context, inv *Invoice, item LineItem) error {
	if _, ok := p.keys[item.IdempotencyKey]; ok {
		return nil
	}
	p.keys[item.IdempotencyKey] = inv.ID
	p.items[inv.ID] = append(p.items[inv.ID], item)
	return nil
}

func (p *fakeProvider) FinalizeInvoice(ctx context.Context, id, idempotencyKey string) (*Invoice, error) {
	if p.failFinalize > 0 {
		p.failFinalize--
		return nil, errors.New("stripe unavailable")
	}
	inv := p.invoices[id]
	var total int64
	for _, it := range p.items[id] {
		total += it.Amount
	}
	inv.Status = models.ExternalInvoiceOpen
	inv.AmountDue = total
	inv.HostedURL = "https://invoice.example.test/" + id
	inv.PDFURL = "https://invoice.example.test/" + id + ".pdf"
	return p.copyOf(id), nil
}

func (p *fakeProvider) SendInvoice(ctx context.Context, id string) (*Invoice, error) {
	return p.copyOf(id), nil
}

func (p *fakeProvider) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	if _, ok := p.invoices[id]; !ok {
		return nil, errors.New("resource_missing")
	}
	return p.copyOf(id), nil
}

func (p *fakeProvider) copyOf(id string) *Invoice {
	c := *p.invoices[id]
	c.Lines = nil
	for _, it := range p.items[id] {
		c.Lines = append(c.Lines, it.Code)
	}
	return &c
}

func (p *fakeProvider) pay(id string) {
	inv := p.invoices[id]
	inv.Status = models.ExternalInvoicePaid
	inv.AmountPaid = inv.AmountDue
}

var fixedNow = time.Date(2026, time.March, 20, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	provider *fakeProvider
	ledger   *billing.Ledger
	bridge   *Bridge
	sleeps   []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	cfg := billing.DefaultConfig()
	cfg.MirrorBatchLimit = 5
	cfg.MirrorDelay = 10 * time.Millisecond

	f := &fixture{db: db, provider: newFakeProvider()}
	f.ledger = billing.NewLedger(billing.NewRepository(db), repository.NewTransactionManager(db), cfg)
	f.bridge = NewBridge(f.provider, NewRepository(db), repository.NewUserRepository(db), f.ledger, nil, cfg)
	f.bridge.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	f.bridge.now = func() time.Time { return fixedNow }
	keys := 0
	f.bridge.newKey = func() string {
		keys++
		return fmt.Sprintf("key-%d", keys)
	}
	return f
}

// createBill stores a January 2026 bill with every fee category set.
func (f *fixture) createBill(t *testing.T, user *models.User, month time.Month) *models.Bill {
	t.Helper()
	counts := billing.Counts{TotalThreads: 4, InHoursThreads: 1, OutOfHoursThreads: 3, ManualReviewThreads: 1, SMSCount: 2}
	bill, err := f.ledger.CreateBill(context.Background(), billing.CreateBillInput{
		UserID: user.ID,
		Period: billing.MonthPeriod(2026, month),
		Counts: counts,
		Fees:   billing.CalculateFees(counts, billing.DefaultPricing),
	})
	require.NoError(t, err)
	return bill
}

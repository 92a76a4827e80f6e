package billing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/testutil"
)

func sampleInput(userID uint, p Period) CreateBillInput {
	counts := Counts{TotalThreads: 4, InHoursThreads: 1, OutOfHoursThreads: 3, ManualReviewThreads: 1, SMSCount: 2}
	return CreateBillInput{
		UserID: userID,
		Period: p,
		Counts: counts,
		Fees:   CalculateFees(counts, DefaultPricing),
		Actor:  7,
	}
}

func TestCreateBill(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db, "talent@example.test")

	bill, err := f.svc.Ledger.CreateBill(context.Background(), sampleInput(user.ID, jan2026))
	require.NoError(t, err)

	assert.NotZero(t, bill.ID)
	assert.Equal(t, models.BillStatusDraft, bill.BillStatus)
	assert.Equal(t, 4, bill.MessageCount)
	assert.Equal(t, 1, bill.ManualReviewCount)
	assert.True(t, bill.StandardFee.Equal(dec("7.00")))
	assert.True(t, bill.ManualReviewFee.Equal(dec("1.00")))
	assert.True(t, bill.SMSFee.Equal(dec("0.60")))
	assert.True(t, bill.TotalAmount.Equal(dec("8.60")), bill.TotalAmount.String())
	assert.Equal(t, d(2026, 2, 14), bill.DueDate.UTC())
	assert.Equal(t, "2024-01", bill.PricingVersion)
	assert.Equal(t, uint(7), bill.CreatedBy)
}

func TestCreateBillTwiceReportsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")

	first, err := f.svc.Ledger.CreateBill(ctx, sampleInput(user.ID, jan2026))
	require.NoError(t, err)

	second, err := f.svc.Ledger.CreateBill(ctx, sampleInput(user.ID, jan2026))
	require.ErrorIs(t, err, ErrBillExists)
	assert.Equal(t, KindConflict, KindOf(err))
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, int64(1), f.countRows(t, &models.Bill{}, "user_id = ?", user.ID))

	// a different period for the same user is a new bill
	_, err = f.svc.Ledger.CreateBill(ctx, sampleInput(user.ID, MonthPeriod(2026, time.February)))
	require.NoError(t, err)
}

func TestCreateBillConcurrentRequestsYieldOneBill(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db, "talent@example.test")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Ledger.CreateBill(context.Background(), sampleInput(user.ID, jan2026))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrBillExists)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, int64(1), f.countRows(t, &models.Bill{}, "user_id = ?", user.ID))
}

func TestUniqueIndexRejectsDuplicateBillRows(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "1.00")

	dup := &models.Bill{
		UserID: user.ID, BillingPeriodStart: jan2026.Start, BillingPeriodEnd: jan2026.End,
		BillStatus: models.BillStatusDraft, DueDate: jan2026.End,
	}
	err := f.svc.repo.CreateBill(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err), err.Error())
}

func TestCreateBillValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := sampleInput(0, jan2026)
	_, err := f.svc.Ledger.CreateBill(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = sampleInput(1, Period{Start: d(2026, 2, 1), End: d(2026, 1, 1)})
	_, err = f.svc.Ledger.CreateBill(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	in = sampleInput(1, jan2026)
	in.Fees.TotalFee = dec("100")
	_, err = f.svc.Ledger.CreateBill(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = sampleInput(1, jan2026)
	in.Counts.InHoursThreads = 10
	_, err = f.svc.Ledger.CreateBill(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Zero(t, f.countRows(t, &models.Bill{}, ""))
}

func TestUpdateStatusStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	bill := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "5.00")

	_, err := f.svc.Ledger.UpdateStatus(ctx, bill.ID, StatusUpdate{Status: models.BillStatusPaid})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	sentAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	sent, err := f.svc.Ledger.MarkSent(ctx, bill.ID, sentAt)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusSent, sent.BillStatus)
	require.NotNil(t, sent.SentAt)
	assert.True(t, sent.SentAt.Equal(sentAt))

	// repeating the same status is a no-op
	_, err = f.svc.Ledger.MarkSent(ctx, bill.ID, sentAt.Add(time.Hour))
	require.NoError(t, err)

	paidOn := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	paid, err := f.svc.Ledger.UpdateStatus(ctx, bill.ID, StatusUpdate{
		Status: models.BillStatusPaid, PaymentDate: &paidOn, PaymentMethod: "bank_transfer", PaymentReference: "REF-1", Actor: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPaid, paid.BillStatus)
	assert.Equal(t, "REF-1", paid.PaymentReference)
	require.NotNil(t, paid.PaymentDate)
	assert.True(t, paid.PaymentDate.Equal(paidOn))
	assert.Contains(t, paid.Notes, "Status changed from sent to paid by user 3")

	_, err = f.svc.Ledger.UpdateStatus(ctx, bill.ID, StatusUpdate{Status: models.BillStatusOverdue})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Ledger.UpdateStatus(ctx, bill.ID, StatusUpdate{Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.Ledger.UpdateStatus(ctx, bill.ID+100, StatusUpdate{Status: models.BillStatusSent})
	assert.ErrorIs(t, err, ErrBillNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")

	pastDue := testutil.CreateBill(t, f.db, user.ID, MonthPeriod(2025, time.November).Start, "5.00")
	notDue := testutil.CreateBill(t, f.db, user.ID, MonthPeriod(2026, time.January).Start, "5.00")
	draft := testutil.CreateBill(t, f.db, user.ID, MonthPeriod(2025, time.October).Start, "5.00")
	for _, b := range []*models.Bill{pastDue, notDue} {
		_, err := f.svc.Ledger.MarkSent(ctx, b.ID, time.Now())
		require.NoError(t, err)
	}

	now := aest(2026, 1, 20, 9, 0)
	n, err := f.svc.Ledger.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Ledger.GetBill(ctx, pastDue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusOverdue, got.BillStatus)

	got, err = f.svc.Ledger.GetBill(ctx, notDue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusSent, got.BillStatus)

	got, err = f.svc.Ledger.GetBill(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusDraft, got.BillStatus)

	// overdue bills can still be paid
	_, err = f.svc.Ledger.UpdateStatus(ctx, pastDue.ID, StatusUpdate{Status: models.BillStatusPaid})
	require.NoError(t, err)
}

func TestApplyCreditAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	bill := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "10.00")
	f.svc.Ledger.now = func() time.Time { return time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC) }

	amounts := []string{"1.50", "2.00", "0.25"}
	previous := decimal.Zero
	for _, a := range amounts {
		updated, err := f.svc.Ledger.ApplyCredit(ctx, bill.ID, dec(a), "goodwill", 3)
		require.NoError(t, err)
		assert.True(t, updated.AccountCredit.GreaterThan(previous))
		previous = updated.AccountCredit
	}

	got, err := f.svc.Ledger.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, got.AccountCredit.Equal(dec("3.75")), got.AccountCredit.String())
	assert.True(t, got.TotalAmount.Equal(dec("6.25")), got.TotalAmount.String())
	assert.True(t, got.TotalAmount.Equal(got.FeeSubtotal().Sub(got.AccountCredit)))

	lines := strings.Split(got.Notes, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[2026-02-02 09:30:00] Credit of 1.50 AUD applied by user 3: goodwill", lines[0])
}

func TestApplyCreditRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	bill := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "10.00")

	for _, amount := range []string{"0", "-1.00", "0.001"} {
		_, err := f.svc.Ledger.ApplyCredit(ctx, bill.ID, dec(amount), "x", 1)
		assert.ErrorIs(t, err, ErrInvalidCredit, amount)
		assert.Equal(t, KindValidation, KindOf(err))
	}

	_, err := f.svc.Ledger.ApplyCredit(ctx, bill.ID, dec("10.01"), "too much", 1)
	assert.ErrorIs(t, err, ErrInvalidCredit)

	_, err = f.svc.Ledger.UpdateStatus(ctx, bill.ID, StatusUpdate{Status: models.BillStatusCancelled})
	require.NoError(t, err)
	_, err = f.svc.Ledger.ApplyCredit(ctx, bill.ID, dec("1.00"), "late", 1)
	assert.ErrorIs(t, err, ErrBillSettled)

	got, err := f.svc.Ledger.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, got.AccountCredit.IsZero())
	assert.True(t, got.TotalAmount.Equal(dec("10.00")))
}

func TestDeleteBillRemovesLinksAndBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	bill := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "10.00")
	for _, name := range []string{"a.pdf", "b.pdf"} {
		doc := testutil.CreateDocument(t, f.db, user.ID, name)
		_, err := f.svc.Linker.LinkDocument(ctx, LinkInput{BillID: bill.ID, DocumentID: doc.ID})
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Ledger.DeleteBill(ctx, bill.ID, 1))

	assert.Zero(t, f.countRows(t, &models.Bill{}, "id = ?", bill.ID))
	assert.Zero(t, f.countRows(t, &models.InvoiceDocument{}, "bill_id = ?", bill.ID))
	// documents survive
	assert.Equal(t, int64(2), f.countRows(t, &models.Document{}, "user_id = ?", user.ID))

	err := f.svc.Ledger.DeleteBill(ctx, bill.ID, 1)
	assert.ErrorIs(t, err, ErrBillNotFound)
}

func TestDeleteBillRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	bill := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "10.00")
	doc := testutil.CreateDocument(t, f.db, user.ID, "a.pdf")
	_, err := f.svc.Linker.LinkDocument(ctx, LinkInput{BillID: bill.ID, DocumentID: doc.ID, IsPrimary: true})
	require.NoError(t, err)

	require.NoError(t, f.db.Callback().Delete().Before("gorm:delete").Register("test:fail_bill_delete", func(tx *gorm.DB) {
		if tx.Statement.Table == "bills" {
			_ = tx.AddError(errors.New("simulated failure"))
		}
	}))

	err = f.svc.Ledger.DeleteBill(ctx, bill.ID, 1)
	require.Error(t, err)
	assert.Equal(t, KindFault, KindOf(err))

	assert.Equal(t, int64(1), f.countRows(t, &models.Bill{}, "id = ?", bill.ID))
	assert.Equal(t, int64(1), f.countRows(t, &models.InvoiceDocument{}, "bill_id = ?", bill.ID))
}

func (f *fixture) addMirror(t *testing.T, bill *models.Bill, status, externalID string) {
	t.Helper()
	mirror := &models.ExternalInvoice{
		BillID:         bill.ID,
		UserID:         bill.UserID,
		IdempotencyKey: "key-" + externalID + "-" + status,
		Status:         status,
		AmountDue:      bill.TotalAmount,
	}
	if externalID != "" {
		mirror.ExternalInvoiceID = &externalID
	}
	require.NoError(t, f.db.Create(mirror).Error)
}

func TestDeleteBillWithExternalInvoice(t *testing.T) {
	tests := []struct {
		status     string
		externalID string
		refused    bool
	}{
		{models.ExternalInvoiceOpen, "in_open", true},
		{models.ExternalInvoicePaid, "in_paid", true},
		{models.ExternalInvoiceUncollectible, "in_bad", true},
		{models.ExternalInvoiceDraft, "in_draft", false},
		{models.ExternalInvoicePending, "", false},
		{models.ExternalInvoiceVoid, "in_void", false},
	}
	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			user := testutil.CreateUser(t, f.db, "talent@example.test")
			bill := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "10.00")
			f.addMirror(t, bill, tc.status, tc.externalID)

			err := f.svc.Ledger.DeleteBill(ctx, bill.ID, 1)
			if tc.refused {
				require.ErrorIs(t, err, ErrBillMirrored)
				assert.Equal(t, KindConflict, KindOf(err))
				assert.Equal(t, int64(1), f.countRows(t, &models.Bill{}, "id = ?", bill.ID))
				assert.Equal(t, int64(1), f.countRows(t, &models.ExternalInvoice{}, "bill_id = ?", bill.ID))
				return
			}
			require.NoError(t, err)
			assert.Zero(t, f.countRows(t, &models.Bill{}, "id = ?", bill.ID))
			assert.Zero(t, f.countRows(t, &models.ExternalInvoice{}, "bill_id = ?", bill.ID))
		})
	}
}

func TestApplyCreditRefusedOnceMirrored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	mirrored := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "10.00")
	f.addMirror(t, mirrored, models.ExternalInvoiceOpen, "in_1")
	voided := testutil.CreateBill(t, f.db, user.ID, MonthPeriod(2026, time.February).Start, "10.00")
	f.addMirror(t, voided, models.ExternalInvoiceVoid, "in_2")

	_, err := f.svc.Ledger.ApplyCredit(ctx, mirrored.ID, dec("1.00"), "goodwill", 1)
	require.ErrorIs(t, err, ErrBillMirrored)
	got, err := f.svc.Ledger.GetBill(ctx, mirrored.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("10.00")))

	updated, err := f.svc.Ledger.ApplyCredit(ctx, voided.ID, dec("1.00"), "goodwill", 1)
	require.NoError(t, err)
	assert.True(t, updated.TotalAmount.Equal(dec("9.00")))
}

func TestListBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, f.db, "a@example.test")
	b := testutil.CreateUser(t, f.db, "b@example.test")
	testutil.CreateBill(t, f.db, a.ID, MonthPeriod(2025, time.December).Start, "1.00")
	testutil.CreateBill(t, f.db, a.ID, jan2026.Start, "1.00")
	testutil.CreateBill(t, f.db, b.ID, jan2026.Start, "1.00")

	bills, err := f.svc.Ledger.ListBills(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, d(2026, 1, 1), bills[0].BillingPeriodStart.UTC())

	forPeriod, err := f.svc.Ledger.ListBillsForPeriod(ctx, jan2026)
	require.NoError(t, err)
	assert.Len(t, forPeriod, 2)
}

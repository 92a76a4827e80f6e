package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/testutil"
)

func TestPreviewBillDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	f.addMessage(t, user.ID, "Booking", models.MessageSourceExternal, aest(2026, 1, 7, 12, 30), true)
	f.addMessage(t, user.ID, "Re: Booking", models.MessageSourceExternal, aest(2026, 1, 7, 19, 0), false)
	f.addMessage(t, user.ID, "Wardrobe", models.MessageSourceExternal, aest(2026, 1, 9, 8, 0), false)

	preview, err := f.svc.PreviewBill(ctx, user.ID, jan2026)
	require.NoError(t, err)

	assert.Equal(t, "January 2026", preview.Label)
	assert.Equal(t, Counts{TotalThreads: 2, InHoursThreads: 1, OutOfHoursThreads: 1, ManualReviewThreads: 1}, preview.Counts)
	assert.Equal(t, "4.00", preview.Fees.TotalFee.StringFixed(2))
	assert.Zero(t, f.countRows(t, &models.Bill{}, ""))

	_, err = f.svc.PreviewBill(ctx, user.ID+50, jan2026)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateBillFromActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	f.addMessage(t, user.ID, "Booking", models.MessageSourceExternal, aest(2026, 1, 7, 12, 30), false)

	bill, err := f.svc.CreateBillFromActivity(ctx, user.ID, jan2026, 2, "manual run")
	require.NoError(t, err)
	assert.Equal(t, 1, bill.InHoursCount)
	assert.Equal(t, "1.00", bill.TotalAmount.StringFixed(2))
	assert.Equal(t, "manual run", bill.Notes)

	again, err := f.svc.CreateBillFromActivity(ctx, user.ID, jan2026, 2, "")
	assert.ErrorIs(t, err, ErrBillExists)
	assert.Equal(t, bill.ID, again.ID)
}

func TestGenerateMonthlyBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := testutil.CreateUser(t, f.db, "active@example.test")
	quiet := testutil.CreateUser(t, f.db, "quiet@example.test")
	billed := testutil.CreateUser(t, f.db, "billed@example.test")
	pending := testutil.CreateUser(t, f.db, "pending@example.test")
	require.NoError(t, f.db.Model(pending).Update("approval_status", models.APPROVAL_PENDING).Error)

	f.addMessage(t, active.ID, "Audition", models.MessageSourceExternal, aest(2026, 1, 12, 12, 0), false)
	f.addMessage(t, billed.ID, "Audition", models.MessageSourceExternal, aest(2026, 1, 12, 12, 0), false)
	f.addMessage(t, pending.ID, "Audition", models.MessageSourceExternal, aest(2026, 1, 12, 12, 0), false)
	existing := testutil.CreateBill(t, f.db, billed.ID, jan2026.Start, "3.00")

	locker := &fakeLocker{}
	f.svc.locker = locker

	summary, err := f.svc.GenerateMonthlyBills(ctx, jan2026, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"billing:run:" + jan2026.Key()}, locker.keys)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Existing)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Outcomes, 3)

	byUser := map[uint]RunOutcome{}
	for _, o := range summary.Outcomes {
		byUser[o.UserID] = o
	}
	assert.Equal(t, RunOutcomeCreated, byUser[active.ID].Outcome)
	assert.Equal(t, "1.00", byUser[active.ID].Total.StringFixed(2))
	assert.Equal(t, RunOutcomeNoActivity, byUser[quiet.ID].Outcome)
	assert.Equal(t, RunOutcomeExists, byUser[billed.ID].Outcome)
	assert.Equal(t, existing.ID, byUser[billed.ID].BillID)
	assert.Equal(t, "3.00", byUser[billed.ID].Total.StringFixed(2))

	assert.Zero(t, f.countRows(t, &models.Bill{}, "user_id = ?", pending.ID))
	assert.Zero(t, f.countRows(t, &models.Bill{}, "user_id = ?", quiet.ID))

	// a second run changes nothing
	again, err := f.svc.GenerateMonthlyBills(ctx, jan2026, 0)
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 2, again.Existing)
	assert.Equal(t, int64(2), f.countRows(t, &models.Bill{}, ""))
}

func TestGenerateMonthlyBillsLockHeld(t *testing.T) {
	f := newFixture(t)
	f.svc.locker = &fakeLocker{held: map[string]bool{"billing:run:" + jan2026.Key(): true}}

	_, err := f.svc.GenerateMonthlyBills(context.Background(), jan2026, 0)
	require.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestGenerateMonthlyBillsInvalidPeriod(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GenerateMonthlyBills(context.Background(), Period{Start: d(2026, 2, 1), End: d(2026, 1, 1)}, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestRecordWebhookEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := WebhookEventInput{Provider: "Stripe", ProviderEventID: "evt_1", EventType: "invoice.paid", PayloadJSON: `{"id":"evt_1"}`, SignatureValid: true}

	created, event, err := f.svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "stripe", event.Provider)

	created, again, err := f.svc.RecordWebhookEvent(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, event.ID, again.ID)

	require.NoError(t, f.svc.MarkWebhookProcessed(ctx, event.ID, errors.New("boom")))
	var stored models.BillingWebhookEvent
	require.NoError(t, f.db.First(&stored, event.ID).Error)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, "boom", stored.ProcessingError)

	// events without an id are keyed by payload hash
	created, hashed, err := f.svc.RecordWebhookEvent(ctx, WebhookEventInput{Provider: "stripe", PayloadJSON: "{}"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, hashed.ProviderEventID, "hash:")
}

func TestNewResult(t *testing.T) {
	res, err := NewResult("data", "ok", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = NewResult("existing", "", ErrBillExists)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "conflict", res.Kind)
	assert.Equal(t, "existing", res.Data)

	res, err = NewResult(nil, "", ErrInvalidCredit)
	require.NoError(t, err)
	assert.Equal(t, "validation", res.Kind)
	assert.Nil(t, res.Data)

	boom := errors.New("connection reset")
	res, err = NewResult(nil, "", boom)
	assert.Equal(t, boom, err)
	assert.Equal(t, "internal error", res.Message)

	assert.Equal(t, KindExternal, KindOf(External("stripe", boom)))
	assert.Nil(t, External("stripe", nil))
}

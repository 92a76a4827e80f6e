package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/testutil"
)

func TestThreadKey(t *testing.T) {
	tests := map[string]string{
		"Inquiry":                    "inquiry",
		"RE: Inquiry":                "inquiry",
		"Re: re: FWD:  Inquiry  ":    "inquiry",
		"Fw: AW: Booking   for  May": "booking for may",
		"Reply needed":               "reply needed",
		"   ":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ThreadKey(in), in)
	}
}

func TestCountThreadsDeduplicatesBySubject(t *testing.T) {
	msgs := []models.Message{
		{ID: 1, Subject: "Inquiry", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 3, 9, 0)},
		{ID: 2, Subject: "Re: Inquiry", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 3, 12, 15)},
		{ID: 3, Subject: "Follow-up", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 4, 12, 45)},
	}

	c := CountThreads(msgs, DefaultBusinessHours())

	assert.Equal(t, 2, c.TotalThreads)
	// "Inquiry" is billed at its first message (09:00), "Follow-up" at 12:45
	assert.Equal(t, 1, c.InHoursThreads)
	assert.Equal(t, 1, c.OutOfHoursThreads)
}

func TestCountThreadsNormalizesStoredKeys(t *testing.T) {
	msgs := []models.Message{
		{ID: 1, Subject: "Inquiry", ThreadKey: "Inquiry", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 3, 9, 0)},
		{ID: 2, Subject: "RE: Inquiry", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 3, 10, 0)},
		{ID: 3, Subject: "Fwd: inquiry", ThreadKey: "  FWD: Inquiry ", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 3, 11, 0)},
	}

	c := CountThreads(msgs, DefaultBusinessHours())

	assert.Equal(t, 1, c.TotalThreads)
	assert.Equal(t, 1, c.OutOfHoursThreads)
}

func TestCountThreadsQualifyingRules(t *testing.T) {
	msgs := []models.Message{
		// agency-internal message without an expectation check does not bill
		{ID: 1, Subject: "Internal note", Source: models.MessageSourceInternal, ProcessedAt: aest(2026, 1, 2, 10, 0)},
		// expectation check starts a billable thread
		{ID: 2, Subject: "Casting callback", Source: models.MessageSourceInternal, ExpectationCheck: true, ProcessedAt: aest(2026, 1, 2, 12, 10)},
		{ID: 3, Subject: "Re: Casting callback", Source: models.MessageSourceExternal, ManualReview: true, ProcessedAt: aest(2026, 1, 2, 16, 0)},
		// internal reply first, external later: billed when the external message arrives
		{ID: 4, Subject: "Contract", Source: models.MessageSourceInternal, ProcessedAt: aest(2026, 1, 5, 12, 30)},
		{ID: 5, Subject: "Re: Contract", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 5, 18, 0)},
		// no subject: each message stands alone
		{ID: 6, Subject: "", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 6, 12, 5)},
		{ID: 7, Subject: "", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 6, 12, 6)},
	}

	c := CountThreads(msgs, DefaultBusinessHours())

	assert.Equal(t, Counts{
		TotalThreads:        4,
		InHoursThreads:      3,
		OutOfHoursThreads:   1,
		ManualReviewThreads: 1,
	}, c)
	require.NoError(t, c.Validate())
}

func TestCountThreadsIgnoresInputOrder(t *testing.T) {
	a := models.Message{ID: 1, Subject: "Shoot", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 8, 12, 20)}
	b := models.Message{ID: 2, Subject: "Re: Shoot", Source: models.MessageSourceExternal, ProcessedAt: aest(2026, 1, 8, 20, 0)}

	assert.Equal(t, CountThreads([]models.Message{a, b}, DefaultBusinessHours()),
		CountThreads([]models.Message{b, a}, DefaultBusinessHours()))
}

func TestAggregateReadsPeriodInBillingZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	other := testutil.CreateUser(t, f.db, "other@example.test")

	f.addMessage(t, user.ID, "Inquiry", models.MessageSourceExternal, aest(2026, 1, 10, 12, 5), false)
	f.addMessage(t, user.ID, "Re: Inquiry", models.MessageSourceExternal, aest(2026, 1, 10, 14, 0), false)
	f.addMessage(t, user.ID, "Follow-up", models.MessageSourceExternal, aest(2026, 1, 20, 17, 0), true)
	// 1 Jan 00:30 AEST is still 31 Dec in UTC but belongs to January
	f.addMessage(t, user.ID, "New year", models.MessageSourceExternal, aest(2026, 1, 1, 0, 30), false)
	// outside the period
	f.addMessage(t, user.ID, "February", models.MessageSourceExternal, aest(2026, 2, 1, 0, 0), false)
	f.addMessage(t, other.ID, "Not mine", models.MessageSourceExternal, aest(2026, 1, 10, 12, 5), false)

	sent := aest(2026, 1, 11, 9, 0)
	for _, status := range []string{models.SMSStatusSent, models.SMSStatusDelivered, models.SMSStatusFailed} {
		require.NoError(t, f.repos.Message.CreateSMS(ctx, &models.SMSMessage{
			UserID: user.ID, ToNumber: "+61400000000", CountryCode: "AU", Status: status, SentAt: &sent,
		}))
	}

	c, err := f.svc.Aggregator.Aggregate(ctx, user.ID, jan2026)
	require.NoError(t, err)
	assert.Equal(t, Counts{TotalThreads: 3, InHoursThreads: 1, OutOfHoursThreads: 2, ManualReviewThreads: 1, SMSCount: 2}, c)

	again, err := f.svc.Aggregator.Aggregate(ctx, user.ID, jan2026)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestAggregateWithoutDataReturnsZeroCounts(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db, "quiet@example.test")

	c, err := f.svc.Aggregator.Aggregate(context.Background(), user.ID, MonthPeriod(2026, time.March))
	require.NoError(t, err)
	assert.Equal(t, Counts{}, c)
	assert.True(t, c.IsZero())
}

func TestAggregateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Aggregator.Aggregate(context.Background(), 0, jan2026)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Aggregator.Aggregate(context.Background(), 1, Period{})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

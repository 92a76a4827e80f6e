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

func TestStatsForUserWithoutBills(t *testing.T) {
	f := newFixture(t)
	user := testutil.CreateUser(t, f.db, "talent@example.test")

	st, err := f.svc.Ledger.GetStats(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, st.TotalBills)
	for _, v := range []string{
		st.TotalBilled.StringFixed(2), st.TotalCredits.StringFixed(2), st.TotalPaid.StringFixed(2),
		st.TotalOverdue.StringFixed(2), st.TotalPending.StringFixed(2),
	} {
		assert.Equal(t, "0.00", v)
	}
}

func TestSummarizeBills(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bill := func(status string, total, credit string, due time.Time) models.Bill {
		return models.Bill{BillStatus: status, TotalAmount: dec(total), AccountCredit: dec(credit), DueDate: due}
	}
	bills := []models.Bill{
		bill(models.BillStatusPaid, "10.00", "0", d(2026, 1, 14)),
		bill(models.BillStatusSent, "5.00", "1.00", d(2026, 2, 14)),  // past due
		bill(models.BillStatusSent, "4.00", "0", d(2026, 3, 14)),     // pending
		bill(models.BillStatusDraft, "3.00", "0", d(2026, 4, 14)),    // pending
		bill(models.BillStatusDraft, "1.00", "0", d(2026, 2, 14)),    // never sent, past due
		bill(models.BillStatusOverdue, "2.00", "0", d(2025, 12, 14)), // overdue
		bill(models.BillStatusCancelled, "7.00", "0.50", d(2026, 2, 14)),
	}

	st := SummarizeBills(bills, now)

	assert.Equal(t, 7, st.TotalBills)
	assert.Equal(t, "25.00", st.TotalBilled.StringFixed(2))
	assert.Equal(t, "1.50", st.TotalCredits.StringFixed(2))
	assert.Equal(t, "10.00", st.TotalPaid.StringFixed(2))
	assert.Equal(t, "8.00", st.TotalOverdue.StringFixed(2))
	assert.Equal(t, "7.00", st.TotalPending.StringFixed(2))
}

func TestStatsReflectCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, f.db, "talent@example.test")
	bill := testutil.CreateBill(t, f.db, user.ID, jan2026.Start, "10.00")

	_, err := f.svc.Ledger.ApplyCredit(ctx, bill.ID, dec("2.50"), "apology", 1)
	require.NoError(t, err)

	st, err := f.svc.Ledger.GetStats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalBills)
	assert.Equal(t, "7.50", st.TotalBilled.StringFixed(2))
	assert.Equal(t, "2.50", st.TotalCredits.StringFixed(2))
}

package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/models"
	"github.com/shopspring/decimal"
)

// Stats summarizes a user's bills. All amounts are zero, never null, when the
// user has no bills.
type Stats struct {
	TotalBills   int             `json:"total_bills"`
	TotalBilled  decimal.Decimal `json:"total_billed"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalOverdue decimal.Decimal `json:"total_overdue"`
	TotalPending decimal.Decimal `json:"total_pending"`
}

// SummarizeBills aggregates bills as of now. Cancelled bills count towards
// TotalBills and TotalCredits only; overdue is derived from the due date.
func SummarizeBills(bills []models.Bill, now time.Time) Stats {
	st := Stats{
		TotalBilled:  decimal.Zero,
		TotalCredits: decimal.Zero,
		TotalPaid:    decimal.Zero,
		TotalOverdue: decimal.Zero,
		TotalPending: decimal.Zero,
	}
	for i := range bills {
		b := &bills[i]
		st.TotalBills++
		st.TotalCredits = st.TotalCredits.Add(b.AccountCredit)
		if b.BillStatus == models.BillStatusCancelled {
			continue
		}
		st.TotalBilled = st.TotalBilled.Add(b.TotalAmount)
		switch b.EffectiveStatus(now) {
		case models.BillStatusPaid:
			st.TotalPaid = st.TotalPaid.Add(b.TotalAmount)
		case models.BillStatusOverdue:
			st.TotalOverdue = st.TotalOverdue.Add(b.TotalAmount)
		default:
			st.TotalPending = st.TotalPending.Add(b.TotalAmount)
		}
	}
	return st
}

// GetStats summarizes the user's bills.
func (l *Ledger) GetStats(ctx context.Context, userID uint) (Stats, error) {
	bills, err := l.repo.ListBillsByUser(ctx, userID)
	if err != nil {
		return SummarizeBills(nil, l.now()), err
	}
	return SummarizeBills(bills, l.now()), nil
}

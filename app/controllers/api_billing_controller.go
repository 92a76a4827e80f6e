package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

// HandleAPIBillingStats returns the billing summary of the caller. Admins may
// ask for another talent with ?user_id=.
func (bc *BillingController) HandleAPIBillingStats(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	userID := uc.UserID
	if uc.IsAdmin && c.Query("user_id") != "" {
		id, err := parseFormID(c, "user_id")
		if err != nil {
			return respondJSON(c, nil, "", err)
		}
		userID = id
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	stats, err := bc.Service.Ledger.GetStats(ctx, userID)
	return respondJSON(c, stats, "billing statistics", err)
}

// HandleAPIListBills returns the caller's bills, newest first.
func (bc *BillingController) HandleAPIListBills(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bills, err := bc.Service.Ledger.ListBills(ctx, usercontext.GetUserID(c))
	if err != nil {
		return respondJSON(c, nil, "", err)
	}
	return respondJSON(c, bc.viewsOf(bills), "bills", nil)
}

// HandleAPIBillInvoices returns the invoices linked to a bill the caller may see.
func (bc *BillingController) HandleAPIBillInvoices(c *fiber.Ctx) error {
	billID, err := parseIDParam(c, "id")
	if err != nil {
		return respondJSON(c, nil, "", err)
	}
	ctx, cancel := requestContext(c, requestTimeout)
	defer cancel()

	bill, err := bc.billForViewer(ctx, c, billID)
	if err != nil {
		return respondJSON(c, nil, "", err)
	}
	invoices, err := bc.Service.Linker.GetInvoicesForBill(ctx, bill.ID)
	return respondJSON(c, invoices, "invoices", err)
}

// HandleAPIRunMonthly starts the monthly run for a scheduler or admin.
func (bc *BillingController) HandleAPIRunMonthly(c *fiber.Ctx) error {
	period, err := bc.periodFromRequest(c)
	if err != nil {
		return respondJSON(c, nil, "", err)
	}
	ctx, cancel := requestContext(c, 10*time.Minute)
	defer cancel()

	summary, err := bc.Service.GenerateMonthlyBills(ctx, period, usercontext.GetUserID(c))
	return respondJSON(c, summary, "monthly run finished", err)
}

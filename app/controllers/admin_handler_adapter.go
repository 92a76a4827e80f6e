package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// Global billing controller instance
var billingController *BillingController

// InitializeBillingController installs the controller behind the route adapters.
func InitializeBillingController(bc *BillingController) {
	billingController = bc
}

// GetBillingController returns the global billing controller instance
func GetBillingController() *BillingController {
	if billingController == nil {
		panic("billing controller not initialized. Call InitializeBillingController first.")
	}
	return billingController
}

// Adapter functions used by the router

func HandleUserBilling(c *fiber.Ctx) error {
	return GetBillingController().HandleUserBilling(c)
}

func HandleUserBill(c *fiber.Ctx) error {
	return GetBillingController().HandleUserBill(c)
}

func HandleUserBillDocument(c *fiber.Ctx) error {
	return GetBillingController().HandleBillDocument(c)
}

func HandleStripeWebhook(c *fiber.Ctx) error {
	return GetBillingController().HandleStripeWebhook(c)
}

// HandleAdminBilling - Adapter for the period dashboard
func HandleAdminBilling(c *fiber.Ctx) error {
	return GetBillingController().HandleDashboard(c)
}

func HandleAdminBill(c *fiber.Ctx) error {
	return GetBillingController().HandleBill(c)
}

func HandleAdminBillingRun(c *fiber.Ctx) error {
	return GetBillingController().HandleRunMonthly(c)
}

func HandleAdminBillPreview(c *fiber.Ctx) error {
	return GetBillingController().HandlePreview(c)
}

func HandleAdminBillCreate(c *fiber.Ctx) error {
	return GetBillingController().HandleCreateBill(c)
}

func HandleAdminBillStatus(c *fiber.Ctx) error {
	return GetBillingController().HandleUpdateStatus(c)
}

func HandleAdminBillCredit(c *fiber.Ctx) error {
	return GetBillingController().HandleApplyCredit(c)
}

func HandleAdminBillDelete(c *fiber.Ctx) error {
	return GetBillingController().HandleDeleteBill(c)
}

func HandleAdminBillLinkDocument(c *fiber.Ctx) error {
	return GetBillingController().HandleLinkDocument(c)
}

func HandleAdminBillUploadInvoice(c *fiber.Ctx) error {
	return GetBillingController().HandleUploadInvoice(c)
}

func HandleAdminBillSetPrimary(c *fiber.Ctx) error {
	return GetBillingController().HandleSetPrimary(c)
}

func HandleAdminBillUnlink(c *fiber.Ctx) error {
	return GetBillingController().HandleUnlink(c)
}

func HandleAdminUnlinkedDocuments(c *fiber.Ctx) error {
	return GetBillingController().HandleUnlinkedDocuments(c)
}

func HandleAdminBillMirror(c *fiber.Ctx) error {
	return GetBillingController().HandleMirrorInvoice(c)
}

func HandleAdminBillingMirrorBatch(c *fiber.Ctx) error {
	return GetBillingController().HandleMirrorBatch(c)
}

func HandleAdminBillSendExternal(c *fiber.Ctx) error {
	return GetBillingController().HandleSendExternalInvoice(c)
}

func HandleAdminBillSyncExternal(c *fiber.Ctx) error {
	return GetBillingController().HandleSyncExternalInvoice(c)
}

func HandleAdminBillNotify(c *fiber.Ctx) error {
	return GetBillingController().HandleNotify(c)
}

func HandleAdminBillingNotifyPeriod(c *fiber.Ctx) error {
	return GetBillingController().HandleNotifyPeriod(c)
}

func HandleAdminBillingOverdueSweep(c *fiber.Ctx) error {
	return GetBillingController().HandleOverdueSweep(c)
}

// API adapters

func HandleAPIBillingStats(c *fiber.Ctx) error {
	return GetBillingController().HandleAPIBillingStats(c)
}

func HandleAPIListBills(c *fiber.Ctx) error {
	return GetBillingController().HandleAPIListBills(c)
}

func HandleAPIBillInvoices(c *fiber.Ctx) error {
	return GetBillingController().HandleAPIBillInvoices(c)
}

func HandleAPIBillingRun(c *fiber.Ctx) error {
	return GetBillingController().HandleAPIRunMonthly(c)
}

func HandleAPIOverdueSweep(c *fiber.Ctx) error {
	c.Request().Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	return GetBillingController().HandleOverdueSweep(c)
}

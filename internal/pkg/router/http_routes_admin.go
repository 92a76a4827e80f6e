package router

import (
	"github.com/ManuelReschke/TalentDesk/app/controllers"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerAdminRoutes(router fiber.Router) {
	adminGroup := router.Group("/admin", middleware.RequireAdmin)

	// Period dashboard and runs
	adminGroup.Get("/billing", controllers.HandleAdminBilling)
	adminGroup.Post("/billing/run", controllers.HandleAdminBillingRun)
	adminGroup.Get("/billing/preview", controllers.HandleAdminBillPreview)
	adminGroup.Post("/billing/bills", controllers.HandleAdminBillCreate)
	adminGroup.Post("/billing/mirror-batch", controllers.HandleAdminBillingMirrorBatch)
	adminGroup.Post("/billing/notify", controllers.HandleAdminBillingNotifyPeriod)
	adminGroup.Post("/billing/overdue-sweep", controllers.HandleAdminBillingOverdueSweep)
	adminGroup.Get("/billing/unlinked-documents", controllers.HandleAdminUnlinkedDocuments)

	// Single bill
	adminGroup.Get("/billing/bills/:id", controllers.HandleAdminBill)
	adminGroup.Post("/billing/bills/:id/status", controllers.HandleAdminBillStatus)
	adminGroup.Post("/billing/bills/:id/credit", controllers.HandleAdminBillCredit)
	adminGroup.Post("/billing/bills/:id/delete", controllers.HandleAdminBillDelete)
	adminGroup.Post("/billing/bills/:id/notify", controllers.HandleAdminBillNotify)

	// Invoice documents
	adminGroup.Post("/billing/bills/:id/invoices", controllers.HandleAdminBillLinkDocument)
	adminGroup.Post("/billing/bills/:id/invoices/upload", controllers.HandleAdminBillUploadInvoice)
	adminGroup.Post("/billing/bills/:id/invoices/:link/primary", controllers.HandleAdminBillSetPrimary)
	adminGroup.Post("/billing/bills/:id/invoices/:link/unlink", controllers.HandleAdminBillUnlink)

	// External invoicing
	adminGroup.Post("/billing/bills/:id/mirror", controllers.HandleAdminBillMirror)
	adminGroup.Post("/billing/bills/:id/send-external", controllers.HandleAdminBillSendExternal)
	adminGroup.Post("/billing/bills/:id/sync-external", controllers.HandleAdminBillSyncExternal)
}

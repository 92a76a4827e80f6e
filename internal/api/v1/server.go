package apiv1

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/middleware"
)

// Pong is the response of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// ErrorResponse is the body of every rejected API request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ServerInterface lists the operations of public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /billing/stats)
	GetBillingStats(c *fiber.Ctx) error
	// (GET /billing/bills)
	GetBills(c *fiber.Ctx) error
	// (GET /billing/bills/{id}/invoices)
	GetBillInvoices(c *fiber.Ctx, id uint) error
	// (POST /billing/runs)
	PostBillingRun(c *fiber.Ctx) error
	// (POST /billing/overdue-sweep)
	PostOverdueSweep(c *fiber.Ctx) error
}

// ServerInterfaceWrapper converts fiber contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// GetBillInvoices operation middleware
func (siw *ServerInterfaceWrapper) GetBillInvoices(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "bad_request",
			Message: "invalid format for parameter id",
		})
	}
	return siw.Handler.GetBillInvoices(c, uint(id))
}

// RegisterHandlers adds each server route to the router. Read endpoints need a
// session or API key, write endpoints need an admin.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", si.GetPing)

	billing := router.Group("/billing", middleware.RequireAPISessionAuth)
	billing.Get("/stats", si.GetBillingStats)
	billing.Get("/bills", si.GetBills)
	billing.Get("/bills/:id/invoices", wrapper.GetBillInvoices)
	billing.Post("/runs", middleware.RequireAPIAdmin, si.PostBillingRun)
	billing.Post("/overdue-sweep", middleware.RequireAPIAdmin, si.PostOverdueSweep)
}

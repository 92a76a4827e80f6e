package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/TalentDesk/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetBillingStats returns the billing summary of the session user or API caller.
func (s *APIServer) GetBillingStats(c *fiber.Ctx) error {
	return controllers.HandleAPIBillingStats(c)
}

// GetBills lists the caller's bills.
func (s *APIServer) GetBills(c *fiber.Ctx) error {
	return controllers.HandleAPIListBills(c)
}

// GetBillInvoices returns the invoices linked to a bill. The wrapper already
// validated the id path parameter.
func (s *APIServer) GetBillInvoices(c *fiber.Ctx, id uint) error {
	return controllers.HandleAPIBillInvoices(c)
}

// PostBillingRun starts the monthly billing run (admin or API key).
func (s *APIServer) PostBillingRun(c *fiber.Ctx) error {
	return controllers.HandleAPIBillingRun(c)
}

// PostOverdueSweep marks unpaid bills past their due date as overdue.
func (s *APIServer) PostOverdueSweep(c *fiber.Ctx) error {
	return controllers.HandleAPIOverdueSweep(c)
}

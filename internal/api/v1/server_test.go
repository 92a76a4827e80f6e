package apiv1

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/usercontext"
)

type recordingServer struct {
	APIServer
	invoicesFor uint
}

func (s *recordingServer) GetBillingStats(c *fiber.Ctx) error  { return c.SendStatus(fiber.StatusOK) }
func (s *recordingServer) GetBills(c *fiber.Ctx) error         { return c.SendStatus(fiber.StatusOK) }
func (s *recordingServer) PostBillingRun(c *fiber.Ctx) error   { return c.SendStatus(fiber.StatusOK) }
func (s *recordingServer) PostOverdueSweep(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

func (s *recordingServer) GetBillInvoices(c *fiber.Ctx, id uint) error {
	s.invoicesFor = id
	return c.SendStatus(fiber.StatusOK)
}

func newTestApp(uc usercontext.UserContext, si ServerInterface) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		usercontext.Set(c, uc)
		return c.Next()
	})
	RegisterHandlers(app.Group("/api/v1"), si)
	return app
}

func TestRegisterHandlers(t *testing.T) {
	talent := usercontext.UserContext{UserID: 7, IsLoggedIn: true}
	adminUser := usercontext.UserContext{UserID: 1, IsLoggedIn: true, IsAdmin: true}

	tests := []struct {
		name   string
		uc     usercontext.UserContext
		method string
		path   string
		want   int
	}{
		{"ping is public", usercontext.UserContext{}, http.MethodGet, "/api/v1/ping", fiber.StatusOK},
		{"stats need a login", usercontext.UserContext{}, http.MethodGet, "/api/v1/billing/stats", fiber.StatusUnauthorized},
		{"stats for talent", talent, http.MethodGet, "/api/v1/billing/stats", fiber.StatusOK},
		{"bills for talent", talent, http.MethodGet, "/api/v1/billing/bills", fiber.StatusOK},
		{"invalid bill id", talent, http.MethodGet, "/api/v1/billing/bills/abc/invoices", fiber.StatusBadRequest},
		{"run needs admin", talent, http.MethodPost, "/api/v1/billing/runs", fiber.StatusForbidden},
		{"run for admin", adminUser, http.MethodPost, "/api/v1/billing/runs", fiber.StatusOK},
		{"sweep needs admin", talent, http.MethodPost, "/api/v1/billing/overdue-sweep", fiber.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(tc.uc, &recordingServer{})
			resp, err := app.Test(httptest.NewRequest(tc.method, tc.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestGetBillInvoicesPassesID(t *testing.T) {
	srv := &recordingServer{}
	app := newTestApp(usercontext.UserContext{UserID: 7, IsLoggedIn: true}, srv)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/billing/bills/42/invoices", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, uint(42), srv.invoicesFor)
}

package router

import (
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/controllers"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
)

func csrfConfig() csrf.Config {
	return csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/") || strings.HasPrefix(c.Path(), "/webhooks/")
		},
	}
}

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	group := app.Group("", csrf.New(csrfConfig()))
	group.Get("/", controllers.HandleStart)
	group.Get("/login", controllers.HandleAuthLogin)
	group.Post("/login", controllers.HandleAuthLogin)
	group.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Talent billing
	group.Get("/user/billing", middleware.RequireAuth, controllers.HandleUserBilling)
	group.Get("/user/billing/:id", middleware.RequireAuth, controllers.HandleUserBill)
	group.Get("/user/billing/:id/documents/:link", middleware.RequireAuth, controllers.HandleUserBillDocument)

	h.registerAdminRoutes(group)
}

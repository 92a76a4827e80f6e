package router

import (
	"github.com/ManuelReschke/TalentDesk/app/controllers"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post(constants.StripeWebhook, controllers.HandleStripeWebhook)
}

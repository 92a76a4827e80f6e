package router

import (
	apiv1 "github.com/ManuelReschke/TalentDesk/internal/api/v1"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// ApiRouter mounts the JSON billing API under /api.
type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{Max: 60}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"service":  "talentdesk-billing",
			"versions": []string{"v1"},
			"docs":     "/docs/api/v1",
		})
	})

	// v1 accepts a session or the portal API key
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(env.GetEnv("PORTAL_API_KEY", "")))
	apiv1.RegisterHandlers(v1, apiv1.NewAPIServer())
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

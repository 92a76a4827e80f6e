package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/cache"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/constants"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/database"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/portal to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	if err := setupBilling(basePath); err != nil {
		log.Fatalf("billing setup failed: %v", err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
		BodyLimit: 25 * 1024 * 1024, // invoice documents are capped at 20 MiB
	})

	if jobManager != nil {
		app.Hooks().OnShutdown(func() error {
			jobManager.Stop()
			return nil
		})
	}

	// ignore and cache favicon
	if _, err := os.Stat(basePath + "public/assets/icons/favicon.ico"); err == nil {
		app.Use(favicon.New(favicon.Config{
			File:         basePath + "public/assets/icons/favicon.ico",
			URL:          "/favicon.ico",
			CacheControl: "public, max-age=604800",
		}))
	} else {
		app.Use(favicon.New())
	}

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	metricsAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	})
	app.Get("/metrics", metricsAuth, monitor.New())
	app.Get("/metrics/prometheus", metricsAuth, adaptor.HTTPHandler(promhttp.Handler()))

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	// local document storage, only when S3 is disabled; controllers check ownership
	// before redirecting here
	if dir := localDocumentsDir; dir != "" {
		app.Static(constants.DocumentsRoute, dir, fiber.Static{
			CacheDuration: 10 * time.Second,
			MaxAge:        0,
		})
	}

	return app
}

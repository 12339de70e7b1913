package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jerllllllllyn/smart-grade/internal/config"
	"github.com/jerllllllllyn/smart-grade/internal/handler"
	"github.com/jerllllllllyn/smart-grade/internal/middleware"
	"github.com/jerllllllllyn/smart-grade/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler *handler.GradingHandler
	JWTMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op when auth is disabled
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.GradingHandler != nil {
		sessions := api.Group("/sessions", jwtMiddleware, middleware.RateLimit("sessions", 30, time.Minute))
		deps.GradingHandler.Register(sessions)
	}
}

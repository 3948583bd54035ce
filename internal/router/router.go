package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deeplink-chat/deeplink-go-api/internal/config"
	"github.com/deeplink-chat/deeplink-go-api/internal/handler"
	"github.com/deeplink-chat/deeplink-go-api/internal/middleware"
	"github.com/deeplink-chat/deeplink-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	ChannelHandler *handler.ChannelHandler
	MessageHandler *handler.MessageHandler
	WSHandler      *handler.WSHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := middleware.JWTProtected(cfg.JWTSecret)

	if deps.AuthHandler != nil {
		auth := api.Group("/auth", middleware.RateLimit("auth", 20, time.Minute))
		deps.AuthHandler.Register(auth, jwtMiddleware)
	}

	if deps.WSHandler != nil {
		// Token travels in the query string; the upgrade handshake does the
		// verification itself.
		deps.WSHandler.Register(api)
	}

	protected := api.Group("", jwtMiddleware)

	if deps.ChannelHandler != nil {
		deps.ChannelHandler.Register(protected)
	}
	if deps.MessageHandler != nil {
		protected.Use("/messages", middleware.RateLimit("messages", 60, time.Minute))
		deps.MessageHandler.Register(protected)
	}
}

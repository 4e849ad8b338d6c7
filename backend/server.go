// Package backend is the HTTP surface of the trade service.
package backend

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/stickerbook/trade-engine/backend/handlers"
	"github.com/stickerbook/trade-engine/backend/middleware"
	"github.com/stickerbook/trade-engine/backend/utils"
	"github.com/stickerbook/trade-engine/tradeserver/config"
)

type Options struct {
	Verifier       middleware.TokenVerifier
	Limiter        *middleware.RateLimiter
	AllowedOrigins string
}

// NewApp builds the fiber application with every route installed.
func NewApp(webApp *handlers.WebApp, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Sticker Trade API",
		ErrorHandler:          middleware.CustomErrorHandler,
		BodyLimit:             config.MaxRequestSize,
		ReadTimeout:           config.RequestTimeout,
		WriteTimeout:          config.RequestTimeout,
		DisableStartupMessage: true,
		// Route params reach the engine and may be kept by the in-memory store.
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CORS(opts.AllowedOrigins))
	app.Use(middleware.LoggingMiddleware())

	SetupRoutes(app, webApp, opts)
	return app
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, webApp *handlers.WebApp, opts Options) {
	app.Get("/health", handlers.HealthCheck(webApp))

	trades := app.Group("/api/trades", middleware.AuthRequired(opts.Verifier))
	limited := func(h fiber.Handler) []fiber.Handler {
		if opts.Limiter == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{middleware.RateLimit(opts.Limiter), h}
	}

	trades.Get("/", handlers.ListTrades(webApp))
	trades.Get("/history", handlers.TradeHistory(webApp))
	trades.Post("/match", limited(handlers.RequestMatch(webApp))...)
	trades.Delete("/items/:itemId", limited(handlers.RemoveItem(webApp))...)
	trades.Get("/:id", handlers.GetTrade(webApp))
	trades.Delete("/:id/match", limited(handlers.CancelMatch(webApp))...)
	trades.Post("/:id/items", limited(handlers.AddItem(webApp))...)
	trades.Post("/:id/ready", limited(handlers.SetReady(webApp))...)
	trades.Delete("/:id/ready", limited(handlers.Unready(webApp))...)
	trades.Post("/:id/cancel", limited(handlers.CancelTrade(webApp))...)
	trades.Post("/:id/stamps", limited(handlers.SendStamp(webApp))...)

	app.Use(func(c *fiber.Ctx) error {
		slog.Warn("No route matched for request",
			slog.String("type", "http"),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
		)
		return utils.SendNotFound(c, "The requested endpoint does not exist")
	})
}

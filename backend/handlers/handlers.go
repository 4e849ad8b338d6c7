package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stickerbook/trade-engine/backend/models"
	"github.com/stickerbook/trade-engine/backend/utils"
	"github.com/stickerbook/trade-engine/internal/domain/trade"
	"github.com/stickerbook/trade-engine/internal/gateways/realtime"
)

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WebApp represents the web application with all dependencies
type WebApp struct {
	Trades trade.Service
	// DB is nil when the engine runs on the in-memory store.
	DB           Pinger
	Hub          *realtime.Hub
	HistoryLimit int
	Version      string
	Commit       string
}

func HealthCheck(webApp *WebApp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := models.NewHealthCheck(webApp.Version, webApp.Commit)

		if webApp.DB != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := webApp.DB.Ping(ctx); err != nil {
				slog.Warn("Health check: database unreachable",
					slog.String("type", "db"),
					slog.String("error", err.Error()))
				health.AddComponent("database", "unhealthy", err.Error(), nil)
			} else {
				health.AddComponent("database", "healthy", "", nil)
			}
		}

		if webApp.Hub != nil {
			stats := webApp.Hub.Stats()
			health.AddComponent("realtime", "healthy", "", map[string]any{
				"clients": stats.Clients,
				"users":   stats.Users,
			})
		}

		status := fiber.StatusOK
		if health.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return utils.SendJSON(c, status, models.NewSuccessResponse(health, "Health check completed"))
	}
}

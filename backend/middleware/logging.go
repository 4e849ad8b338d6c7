package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/stickerbook/trade-engine/backend/utils"
	"github.com/stickerbook/trade-engine/tradeserver/logger"
)

// LoggingMiddleware logs HTTP requests in a structured format
func LoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		// Resolve the final status the error handler will write.
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		attrs := []any{
			slog.String("ip", utils.GetIPAddress(c)),
			slog.Int("size", len(c.Response().Body())),
		}
		if userID, ok := utils.CurrentUserID(c); ok {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if ua := utils.GetUserAgent(c); ua != "" {
			attrs = append(attrs, slog.String("user_agent", ua))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		logger.LogRequest(c.Method(), c.Path(), status, time.Since(start), attrs...)
		return err
	}
}

package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/stickerbook/trade-engine/backend/utils"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// AuthRequired rejects requests without a valid bearer token and stores the
// token subject under utils.UserIDKey.
func AuthRequired(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			slog.Debug("Auth required: missing bearer token",
				slog.String("type", "http"),
				slog.String("path", c.Path()))
			return utils.SendUnauthorized(c, "Authentication required")
		}

		userID, err := verifier.Verify(raw)
		if err != nil {
			slog.Debug("Auth required: invalid token",
				slog.String("type", "http"),
				slog.String("path", c.Path()),
				slog.String("error", err.Error()))
			return utils.SendUnauthorized(c, "Invalid or expired token")
		}

		c.Locals(utils.UserIDKey, userID)
		return c.Next()
	}
}

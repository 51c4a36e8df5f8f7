package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/walletshop/internal/utils"
)

const userContextKey = "currentUserID"

// AuthMiddleware validates session JWTs and loads the chat user ID into context.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims, err := utils.ParseToken(jwtSecret, strings.TrimSpace(parts[1]), utils.PurposeSession)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(userContextKey, claims.UserID)
		return c.Next()
	}
}

// GetCurrentUserID extracts the authenticated chat user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(userContextKey).(int64)
	return id, ok && id != 0
}

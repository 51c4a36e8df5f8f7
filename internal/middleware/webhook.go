package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// WebhookSecretHeader carries the shared secret of inbound webhooks.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookAuthMiddleware rejects webhook calls without the shared secret.
// An empty secret rejects every call.
func WebhookAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provided := c.Get(WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid webhook secret")
		}
		return c.Next()
	}
}

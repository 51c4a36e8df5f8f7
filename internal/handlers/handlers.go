package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/walletshop/internal/services"
)

// Health reports that the process is serving.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// providerError maps a wallet provider failure onto an HTTP error. Client
// errors keep their status and message, everything else becomes 502.
func providerError(action string, err error) error {
	log.Printf("[HTTP] %s failed: %v", action, err)

	var pe *services.ProviderError
	if errors.As(err, &pe) {
		if pe.Status >= 400 && pe.Status < 500 {
			msg := pe.Message
			if msg == "" {
				msg = action + " rejected by provider"
			}
			return fiber.NewError(pe.Status, msg)
		}
	}
	if errors.Is(err, services.ErrProviderNotConfigured) {
		return fiber.NewError(fiber.StatusServiceUnavailable, "wallet provider is not configured")
	}
	return fiber.NewError(fiber.StatusBadGateway, action+" failed")
}

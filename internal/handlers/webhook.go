package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/services"
)

// WalletWebhooks handles wallet lifecycle callbacks from the web app.
type WalletWebhooks interface {
	HandleWalletCreated(ctx context.Context, event services.WalletEvent) (*models.WalletUser, string, error)
	Logout(ctx context.Context, userID int64) error
}

// WebhookHandler serves the inbound webhooks.
type WebhookHandler struct {
	wallets WalletWebhooks
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(wallets WalletWebhooks) *WebhookHandler {
	return &WebhookHandler{wallets: wallets}
}

type logoutRequest struct {
	UserID int64 `json:"userId"`
}

// WalletCreated links a freshly created wallet to the chat user of the link token.
func (h *WebhookHandler) WalletCreated(c *fiber.Ctx) error {
	var req services.WalletEvent
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" || req.WalletAddress == "" {
		return fiber.NewError(fiber.StatusBadRequest, "token and walletAddress are required")
	}

	user, sessionToken, err := h.wallets.HandleWalletCreated(c.UserContext(), req)
	switch {
	case errors.Is(err, services.ErrInvalidLinkToken):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrInvalidWalletAddress):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		log.Printf("[Webhook] wallet-created failed: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to link wallet")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":  user,
			"token": sessionToken,
		},
	})
}

// Logout forgets everything stored for a chat user.
func (h *WebhookHandler) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "userId is required")
	}

	if err := h.wallets.Logout(c.UserContext(), req.UserID); err != nil {
		log.Printf("[Webhook] logout for user %d failed: %v", req.UserID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to log out")
	}
	return c.JSON(fiber.Map{"success": true})
}

package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/example/walletshop/internal/middleware"
	"github.com/example/walletshop/internal/services"
)

// CheckoutFlow is the purchase flow exposed to the web app.
type CheckoutFlow interface {
	Search(ctx context.Context, userID int64, query string) services.Reply
	SelectProduct(ctx context.Context, userID int64, index int) services.Reply
	Cancel(ctx context.Context, userID int64) services.Reply
	HandleText(ctx context.Context, userID int64, text string) (services.Reply, bool)
}

// CheckoutHandler exposes the checkout flow over HTTP.
type CheckoutHandler struct {
	checkout CheckoutFlow
}

// NewCheckoutHandler constructs CheckoutHandler.
func NewCheckoutHandler(checkout CheckoutFlow) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

type searchRequest struct {
	Query string `json:"query"`
}

type selectRequest struct {
	Index *int `json:"index"`
}

type inputRequest struct {
	Text string `json:"text"`
}

// Search finds products and makes them selectable.
func (h *CheckoutHandler) Search(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return replyJSON(c, h.checkout.Search(c.UserContext(), userID, req.Query))
}

// Select starts a checkout for a product of the last search.
func (h *CheckoutHandler) Select(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req selectRequest
	if err := c.BodyParser(&req); err != nil || req.Index == nil {
		return fiber.NewError(fiber.StatusBadRequest, "index is required")
	}
	return replyJSON(c, h.checkout.SelectProduct(c.UserContext(), userID, *req.Index))
}

// Input feeds the next answer (email or address) to the open checkout.
func (h *CheckoutHandler) Input(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req inputRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	reply, handled := h.checkout.HandleText(c.UserContext(), userID, req.Text)
	if !handled {
		return fiber.NewError(fiber.StatusConflict, "no active checkout")
	}
	return replyJSON(c, reply)
}

// Cancel drops the open checkout.
func (h *CheckoutHandler) Cancel(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return replyJSON(c, h.checkout.Cancel(c.UserContext(), userID))
}

func replyJSON(c *fiber.Ctx, reply services.Reply) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    reply,
	})
}

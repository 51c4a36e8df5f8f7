package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/walletshop/internal/middleware"
	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/services"
	"github.com/example/walletshop/internal/store"
	"github.com/example/walletshop/internal/utils"
)

// OrderProvider reads orders and forwards approvals to the wallet provider.
type OrderProvider interface {
	GetOrder(ctx context.Context, orderID string) (*services.Order, error)
	SubmitApproval(ctx context.Context, walletAddress, transactionID string, approval services.Approval) (*services.TransactionResult, error)
}

// WalletLookup finds the wallet of a chat user.
type WalletLookup interface {
	GetWallet(ctx context.Context, userID int64) (*models.WalletUser, error)
}

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders   store.OrderStore
	provider OrderProvider
	wallets  WalletLookup
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders store.OrderStore, provider OrderProvider, wallets WalletLookup) *OrderHandler {
	return &OrderHandler{orders: orders, provider: provider, wallets: wallets}
}

type approvalRequest struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// ListOrders returns the caller's order history, newest first.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pagination := utils.ParsePagination(c)
	records, total, err := h.orders.ListOrders(c.UserContext(), userID, pagination.Limit, pagination.Offset)
	if err != nil {
		log.Printf("[HTTP] list orders for user %d failed: %v", userID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to list orders")
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       records,
		"pagination": pagination.Meta(total),
	})
}

// GetOrder returns a stored order together with its live provider status.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orderID := c.Params("id")
	record, err := h.orders.GetOrder(c.UserContext(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		log.Printf("[HTTP] load order %s failed: %v", orderID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load order")
	}
	if record.UserID != userID {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	live, err := h.provider.GetOrder(c.UserContext(), orderID)
	if err != nil {
		return providerError("fetch order", err)
	}

	status := services.StatusOf(live)
	if status != services.OrderStatusPending && string(status) != record.Status {
		if err := h.orders.UpdateOrderStatus(c.UserContext(), orderID, string(status)); err != nil {
			log.Printf("[HTTP] update status of order %s failed: %v", orderID, err)
		}
		record.Status = string(status)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"record": record,
			"order":  live,
			"status": status,
		},
	})
}

// SubmitApproval forwards the buyer's signature for a pending wallet transaction.
// :id is the provider transaction ID created by the approval page, not an order ID.
func (h *OrderHandler) SubmitApproval(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req approvalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Signer = strings.TrimSpace(req.Signer)
	req.Signature = strings.TrimSpace(req.Signature)
	if req.Signer == "" || req.Signature == "" {
		return fiber.NewError(fiber.StatusBadRequest, "signer and signature are required")
	}

	wallet, err := h.wallets.GetWallet(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNoWallet) {
			return fiber.NewError(fiber.StatusNotFound, "no wallet linked")
		}
		log.Printf("[HTTP] load wallet for user %d failed: %v", userID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load wallet")
	}

	result, err := h.provider.SubmitApproval(c.UserContext(), wallet.WalletAddress, c.Params("id"), services.Approval{
		Signer:    req.Signer,
		Signature: req.Signature,
	})
	if err != nil {
		return providerError("submit approval", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/example/walletshop/internal/config"
	"github.com/example/walletshop/internal/handlers"
	"github.com/example/walletshop/internal/metrics"
	"github.com/example/walletshop/internal/middleware"
	"github.com/example/walletshop/internal/store"
)

// Wallets is the wallet service as seen by the HTTP layer.
type Wallets interface {
	handlers.WalletWebhooks
	handlers.WalletLookup
}

// Services bundles what the HTTP handlers call into.
type Services struct {
	Checkout handlers.CheckoutFlow
	Wallets  Wallets
	Orders   store.OrderStore
	Provider handlers.OrderProvider
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, cfg *config.Config, svc Services) {
	webhookHandler := handlers.NewWebhookHandler(svc.Wallets)
	checkoutHandler := handlers.NewCheckoutHandler(svc.Checkout)
	orderHandler := handlers.NewOrderHandler(svc.Orders, svc.Provider, svc.Wallets)

	app.Use(middleware.MetricsMiddleware())

	app.Get("/health", handlers.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	// Web app callbacks
	webhooks := api.Group("/webhooks", middleware.WebhookAuthMiddleware(cfg.WebhookSecret))
	webhooks.Post("/wallet-created", webhookHandler.WalletCreated)
	webhooks.Post("/logout", webhookHandler.Logout)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))

	checkout := protected.Group("/checkout")
	checkout.Post("/search", checkoutHandler.Search)
	checkout.Post("/select", checkoutHandler.Select)
	checkout.Post("/input", checkoutHandler.Input)
	checkout.Post("/cancel", checkoutHandler.Cancel)

	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)

	protected.Post("/wallets/transactions/:id/approvals", orderHandler.SubmitApproval)
}

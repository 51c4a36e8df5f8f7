package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/example/walletshop/internal/bot"
	"github.com/example/walletshop/internal/config"
	"github.com/example/walletshop/internal/database"
	"github.com/example/walletshop/internal/metrics"
	"github.com/example/walletshop/internal/routes"
	"github.com/example/walletshop/internal/services"
	"github.com/example/walletshop/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "walletshop",
		Short:         "Chat shop that pays for products from the buyer's wallet",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			conn, err := database.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			return database.Migrate(conn)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatalf("walletshop: %v", err)
	}
}

func serve(ctx context.Context) error {
	cfg := config.Load()
	metrics.Init(cfg.MetricsEnabled)

	var db *gorm.DB
	if cfg.StoreBackend == "postgres" {
		db = database.Connect(cfg.DatabaseURL)
	}
	st, err := store.New(cfg.StoreBackend, db)
	if err != nil {
		return err
	}
	log.Printf("[Server] using %s store", cfg.StoreBackend)

	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		log.Printf("[Server] authorized as @%s", botAPI.Self.UserName)
	} else {
		log.Println("[Server] TELEGRAM_BOT_TOKEN is not set, bot disabled")
	}

	var sender services.MessageSender
	if botAPI != nil {
		sender = botAPI
	}
	telegram := services.NewTelegramService(sender, cfg.TelegramAdminChat)

	crossmint := services.NewCrossmintClient(cfg.CrossmintBaseURL, cfg.CrossmintAPIKey)
	delegation := services.NewDelegationChecker(crossmint)

	cache := services.NewProductCache(st)
	sessions := services.NewSessionManager(st)

	watcher := services.NewOrderWatcher(crossmint, telegram, st, services.WatchConfig{
		Delay:       cfg.OrderWatchDelay,
		MaxAttempts: cfg.OrderWatchMaxAttempts,
	})
	defer watcher.Stop()

	wallets := services.NewWalletService(st, cache, sessions, crossmint, delegation, services.WalletConfig{
		JWTSecret:     cfg.JWTSecret,
		SessionTTL:    cfg.TokenExpires,
		WebAppURL:     cfg.WebAppURL,
		SignerAddress: cfg.CrossmintSignerAddress,
		Chain:         cfg.CheckoutChain,
		Currency:      cfg.CheckoutCurrency,
	})

	checkout := services.NewCheckoutService(services.CheckoutDeps{
		Search:    services.NewSearchService(cfg.SearchBaseURL, cfg.SearchAPIKey, cfg.SearchRatePerMin, cfg.SearchResultsLimit, cache),
		Cache:     cache,
		Sessions:  sessions,
		Wallets:   wallets,
		Gateway:   services.NewOrderGateway(crossmint, cfg.CheckoutChain, cfg.CheckoutCurrency),
		Signer:    services.NewSigningCoordinator(delegation, crossmint, watcher, cfg.CrossmintSignerAddress, cfg.WebAppURL),
		Scheduler: watcher,
		Orders:    st,
		Notifier:  telegram,
	})

	app := fiber.New(fiber.Config{
		AppName: "Wallet Shop",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, cfg, routes.Services{
		Checkout: checkout,
		Wallets:  wallets,
		Orders:   st,
		Provider: crossmint,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting server on :%s", cfg.AppPort)
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("[Server] shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if botAPI != nil {
		shop := bot.New(botAPI, checkout, wallets)
		g.Go(func() error {
			return shop.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

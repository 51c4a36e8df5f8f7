// Package bot is the Telegram transport of the shop: it turns commands and
// button presses into checkout and wallet calls and renders their replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/services"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Checkout is the purchase flow driven by the bot.
type Checkout interface {
	Search(ctx context.Context, userID int64, query string) services.Reply
	SelectProduct(ctx context.Context, userID int64, index int) services.Reply
	Retry(ctx context.Context, userID int64, index int) services.Reply
	Cancel(ctx context.Context, userID int64) services.Reply
	HandleText(ctx context.Context, userID int64, text string) (services.Reply, bool)
}

// Wallets is the wallet management used by the bot commands.
type Wallets interface {
	GetWallet(ctx context.Context, userID int64) (*models.WalletUser, error)
	Balance(ctx context.Context, user *models.WalletUser) (decimal.Decimal, error)
	CreateAuthLink(ctx context.Context, userID int64) (string, error)
	EnableAutoSign(ctx context.Context, userID int64) error
	Logout(ctx context.Context, userID int64) error
	Currency() string
	TopUpURL() string
}

const helpText = `<b>🛍 Wallet Shop</b>
Buy products with your wallet, right from this chat.

/search &lt;query&gt; - find products
/wallet - connect or show your wallet
/balance - show your wallet balance
/autosign - let the shop sign payments for you
/cancel - cancel the current checkout
/logout - disconnect your wallet`

// Bot polls Telegram for updates and answers them.
type Bot struct {
	api      API
	checkout Checkout
	wallets  Wallets
	wg       sync.WaitGroup
}

// New creates a Bot.
func New(api API, checkout Checkout, wallets Wallets) *Bot {
	return &Bot{api: api, checkout: checkout, wallets: wallets}
}

// Run long-polls for updates until ctx is cancelled. Each update is handled
// in its own goroutine; Run waits for them before returning.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	log.Println("[Bot] polling for updates")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate dispatches one update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Bot] panic while handling update %d: %v", update.UpdateID, r)
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	chatID, userID := message.Chat.ID, message.From.ID

	if message.IsCommand() {
		b.handleCommand(ctx, chatID, userID, message.Command(), strings.TrimSpace(message.CommandArguments()))
		return
	}

	reply, handled := b.checkout.HandleText(ctx, userID, message.Text)
	if !handled {
		reply = services.Reply{Text: "Use /search to find a product or /help to see what I can do."}
	}
	b.send(chatID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, chatID, userID int64, command, args string) {
	switch command {
	case "start", "help":
		b.send(chatID, services.Reply{Text: helpText})
	case "search":
		b.send(chatID, b.checkout.Search(ctx, userID, args))
	case "wallet":
		b.send(chatID, b.walletReply(ctx, userID))
	case "balance":
		b.send(chatID, b.balanceReply(ctx, userID))
	case "autosign":
		b.send(chatID, b.autoSignReply(ctx, userID))
	case "cancel":
		b.send(chatID, b.checkout.Cancel(ctx, userID))
	case "logout":
		if err := b.wallets.Logout(ctx, userID); err != nil {
			log.Printf("[Bot] logout for user %d failed: %v", userID, err)
			b.send(chatID, services.Reply{Text: "⚠️ Could not log you out. Please try again."})
			return
		}
		b.send(chatID, services.Reply{Text: "👋 Wallet disconnected. Use /wallet to connect again."})
	default:
		b.send(chatID, services.Reply{Text: "Unknown command. Use /help to see available commands."})
	}
}

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.Printf("[Bot] answer callback %s failed: %v", query.ID, err)
	}
	if query.Message == nil || query.Message.Chat == nil || query.From == nil {
		return
	}
	chatID, userID := query.Message.Chat.ID, query.From.ID

	action, index, ok := services.ParseCallback(query.Data)
	if !ok {
		log.Printf("[Bot] ignoring callback data %q from user %d", query.Data, userID)
		return
	}

	switch action {
	case services.CallbackBuy:
		b.send(chatID, b.checkout.SelectProduct(ctx, userID, index))
	case services.CallbackRetry:
		b.send(chatID, b.checkout.Retry(ctx, userID, index))
	case services.CallbackCancel:
		b.send(chatID, b.checkout.Cancel(ctx, userID))
	}
}

func (b *Bot) walletReply(ctx context.Context, userID int64) services.Reply {
	wallet, err := b.wallets.GetWallet(ctx, userID)
	if err == nil {
		return services.Reply{
			Text:    fmt.Sprintf("👛 Your wallet: <code>%s</code>", html.EscapeString(wallet.WalletAddress)),
			Buttons: [][]services.Button{{{Label: "Open wallet", URL: b.wallets.TopUpURL()}}},
		}
	}
	if !errors.Is(err, services.ErrNoWallet) {
		log.Printf("[Bot] load wallet for user %d failed: %v", userID, err)
		return services.Reply{Text: "⚠️ Could not load your wallet. Please try again."}
	}

	link, err := b.wallets.CreateAuthLink(ctx, userID)
	if err != nil {
		log.Printf("[Bot] auth link for user %d failed: %v", userID, err)
		return services.Reply{Text: "⚠️ Could not create a wallet link. Please try again."}
	}
	return services.Reply{
		Text:    "Connect a wallet to start shopping. The link is valid for 30 minutes.",
		Buttons: [][]services.Button{{{Label: "Connect wallet", URL: link}}},
	}
}

func (b *Bot) balanceReply(ctx context.Context, userID int64) services.Reply {
	wallet, err := b.wallets.GetWallet(ctx, userID)
	if err != nil {
		return services.Reply{Text: "You have no wallet yet. Use /wallet to connect one."}
	}
	balance, err := b.wallets.Balance(ctx, wallet)
	if err != nil {
		log.Printf("[Bot] balance for user %d failed: %v", userID, err)
		return services.Reply{Text: "⚠️ Could not check your balance. Please try again."}
	}
	return services.Reply{Text: "💰 Balance: " + services.FormatPrice(balance, b.wallets.Currency())}
}

func (b *Bot) autoSignReply(ctx context.Context, userID int64) services.Reply {
	err := b.wallets.EnableAutoSign(ctx, userID)
	switch {
	case err == nil:
		return services.Reply{Text: "✅ Auto-sign is enabled. Payments will be signed for you."}
	case errors.Is(err, services.ErrNoWallet):
		return services.Reply{Text: "You have no wallet yet. Use /wallet to connect one."}
	default:
		log.Printf("[Bot] enable auto-sign for user %d failed: %v", userID, err)
		return services.Reply{Text: "⚠️ Could not enable auto-sign. You can still approve payments manually."}
	}
}

func (b *Bot) send(chatID int64, reply services.Reply) {
	if reply.Empty() {
		return
	}
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup, ok := keyboard(reply.Buttons); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("[Bot] send to chat %d failed: %v", chatID, err)
	}
}

func keyboard(rows [][]services.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			if button.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(button.Label, button.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data))
			}
		}
		markup = append(markup, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...), true
}

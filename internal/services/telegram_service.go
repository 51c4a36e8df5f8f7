package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// MessageSender is the part of the bot API the notifier uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	sender      MessageSender
	adminChatID int64
}

// NewTelegramService creates a new TelegramService. A nil sender disables
// notifications, an unparsable adminChatID disables admin notifications.
func NewTelegramService(sender MessageSender, adminChatID string) *TelegramService {
	id, err := strconv.ParseInt(strings.TrimSpace(adminChatID), 10, 64)
	if err != nil && adminChatID != "" {
		log.Printf("[Telegram] invalid admin chat id %q: %v", adminChatID, err)
	}
	return &TelegramService{sender: sender, adminChatID: id}
}

// SendMessage sends an HTML message to chatID.
func (s *TelegramService) SendMessage(chatID int64, text string) error {
	if s.sender == nil {
		log.Println("[Telegram] Bot not configured")
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := s.sender.Send(msg); err != nil {
		log.Printf("[Telegram] Failed to send message to %d: %v", chatID, err)
		return err
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == 0 {
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// FormatPrice formats an amount with two decimals, thousand separators and currency.
func FormatPrice(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "USDC"
	}
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var result strings.Builder
	if amount.IsNegative() {
		result.WriteByte('-')
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(digit)
	}
	return result.String() + "." + frac + " " + strings.ToUpper(currency)
}

// OrderPlacedNotification describes a newly created order.
type OrderPlacedNotification struct {
	OrderID      string
	UserID       int64
	ProductTitle string
	Outcome      OrderOutcome
	Total        *Money
}

// NotifyOrderPlaced tells the admin chat about a new order.
func (s *TelegramService) NotifyOrderPlaced(ctx context.Context, order OrderPlacedNotification) {
	total := "unknown"
	if order.Total != nil {
		if amount, err := decimal.NewFromString(order.Total.Amount); err == nil {
			total = FormatPrice(amount, order.Total.Currency)
		}
	}

	message := fmt.Sprintf(`<b>🛒 New order</b>
<b>Order:</b> <code>%s</code>
<b>User:</b> %d
<b>Product:</b> %s
<b>Total:</b> %s
<b>Status:</b> %s`,
		html.EscapeString(order.OrderID),
		order.UserID,
		html.EscapeString(order.ProductTitle),
		total,
		order.Outcome,
	)
	if err := s.SendToAdmin(message); err != nil {
		log.Printf("[Telegram] admin notification for order %s failed: %v", order.OrderID, err)
	}
}

// NotifyOrderStatus tells the buyer that a watched order settled.
func (s *TelegramService) NotifyOrderStatus(ctx context.Context, userID int64, order *Order, status OrderStatus) {
	var message string
	switch status {
	case OrderStatusCompleted:
		message = fmt.Sprintf("✅ Your order <code>%s</code> is complete.", html.EscapeString(order.OrderID))
	case OrderStatusFailed:
		message = fmt.Sprintf("❌ Your order <code>%s</code> failed. Use /search to try again.", html.EscapeString(order.OrderID))
	default:
		return
	}
	if err := s.SendMessage(userID, message); err != nil {
		log.Printf("[Telegram] status notification for order %s failed: %v", order.OrderID, err)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/store"
)

// Callback data understood by the checkout flow.
const (
	CallbackBuy    = "buy"
	CallbackRetry  = "retry"
	CallbackCancel = "cancel"
)

const addressFormatHint = "<code>Name|Street|City|State|PostalCode|Country</code>\nExample: <code>John Doe|123 Main St|Austin|TX|73301|US</code>"

// Button is an action offered with a reply. Either Data or URL is set.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Reply is a transport-neutral answer to the user. Text is HTML.
type Reply struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

// Empty reports whether there is nothing to send.
func (r Reply) Empty() bool {
	return r.Text == ""
}

// ProductSearcher runs a search and caches the results for the user.
type ProductSearcher interface {
	Search(ctx context.Context, userID int64, query string) ([]models.Product, error)
}

// WalletAccess is what the checkout flow needs to know about a user's wallet.
type WalletAccess interface {
	GetWallet(ctx context.Context, userID int64) (*models.WalletUser, error)
	Balance(ctx context.Context, user *models.WalletUser) (decimal.Decimal, error)
	CreateAuthLink(ctx context.Context, userID int64) (string, error)
	TopUpURL() string
	Currency() string
}

// OrderPlacer creates a provider order for a product.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, product models.Product, email, payerAddress string, address *models.PhysicalAddress) (*OrderResult, error)
}

// SignatureCompleter pays for an order that needs a signed transaction.
type SignatureCompleter interface {
	CompleteSignature(ctx context.Context, req SignatureRequest) *SignatureResult
}

// AdminNotifier is told about every created order.
type AdminNotifier interface {
	NotifyOrderPlaced(ctx context.Context, order OrderPlacedNotification)
}

// CheckoutDeps wires CheckoutService. Notifier may be nil.
type CheckoutDeps struct {
	Search    ProductSearcher
	Cache     *ProductCache
	Sessions  *SessionManager
	Wallets   WalletAccess
	Gateway   OrderPlacer
	Signer    SignatureCompleter
	Scheduler OrderScheduler
	Orders    store.OrderStore
	Notifier  AdminNotifier
}

// CheckoutService drives a purchase from search to payment and answers with
// replies any transport can render.
type CheckoutService struct {
	deps CheckoutDeps
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(deps CheckoutDeps) *CheckoutService {
	return &CheckoutService{deps: deps}
}

// Search looks up products and lists them with a buy button each.
func (s *CheckoutService) Search(ctx context.Context, userID int64, query string) Reply {
	products, err := s.deps.Search.Search(ctx, userID, query)
	if err != nil {
		if errors.Is(err, ErrEmptyQuery) {
			return Reply{Text: "Tell me what to look for, e.g. <code>/search wireless headphones</code>"}
		}
		log.Printf("[Checkout] search for user %d failed: %v", userID, err)
		return Reply{Text: "⚠️ Search is unavailable right now. Please try again in a moment."}
	}
	if len(products) == 0 {
		return Reply{Text: fmt.Sprintf("No products found for <b>%s</b>. Try another query.", html.EscapeString(query))}
	}

	var text strings.Builder
	fmt.Fprintf(&text, "🔎 Results for <b>%s</b>:\n", html.EscapeString(strings.TrimSpace(query)))
	buttons := make([][]Button, 0, len(products))
	for i, product := range products {
		fmt.Fprintf(&text, "\n%d. <b>%s</b>\n   %s", i+1, html.EscapeString(product.Title), html.EscapeString(product.Price))
		buttons = append(buttons, []Button{{
			Label: fmt.Sprintf("Buy #%d", i+1),
			Data:  CallbackBuy + ":" + strconv.Itoa(i),
		}})
	}
	return Reply{Text: text.String(), Buttons: buttons}
}

// SelectProduct starts a checkout for the product at index of the user's
// last search. Any open checkout of the user is replaced.
func (s *CheckoutService) SelectProduct(ctx context.Context, userID int64, index int) Reply {
	product, ok := s.deps.Cache.GetByIndex(ctx, userID, index)
	if !ok {
		return Reply{Text: "That product is no longer available. Please /search again."}
	}

	wallet, err := s.deps.Wallets.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoWallet) {
			return s.connectWalletReply(ctx, userID)
		}
		log.Printf("[Checkout] load wallet for user %d failed: %v", userID, err)
		return s.failureReply(index)
	}

	balance, err := s.deps.Wallets.Balance(ctx, wallet)
	if err != nil {
		log.Printf("[Checkout] balance check for user %d failed: %v", userID, err)
		return Reply{
			Text:    "⚠️ Could not check your wallet balance. Please try again.",
			Buttons: [][]Button{{{Label: "Try again", Data: retryData(index)}}},
		}
	}
	if !balance.IsPositive() {
		return Reply{
			Text: fmt.Sprintf("Your wallet has no %s yet. Top it up and try again.", s.deps.Wallets.Currency()),
			Buttons: [][]Button{
				{{Label: "Top up wallet", URL: s.deps.Wallets.TopUpURL()}},
				{{Label: "Try again", Data: retryData(index)}},
			},
		}
	}

	session, err := s.deps.Sessions.Start(ctx, userID, product, index)
	if err != nil {
		log.Printf("[Checkout] start session for user %d failed: %v", userID, err)
		return s.failureReply(index)
	}

	header := fmt.Sprintf("🛍 <b>%s</b>\nPrice: %s\nBalance: %s\n\n",
		html.EscapeString(product.Title), html.EscapeString(product.Price), FormatPrice(balance, s.deps.Wallets.Currency()))

	if wallet.Email != "" {
		session.Email = wallet.Email
		if err := s.deps.Sessions.Advance(ctx, session, models.StepCollectingAddress); err != nil {
			return s.abort(ctx, userID, index, err)
		}
		return Reply{
			Text:    header + "Send your US shipping address as\n" + addressFormatHint,
			Buttons: cancelButtons(),
		}
	}

	if err := s.deps.Sessions.Advance(ctx, session, models.StepCollectingEmail); err != nil {
		return s.abort(ctx, userID, index, err)
	}
	return Reply{
		Text:    header + "Send the email address for order updates.",
		Buttons: cancelButtons(),
	}
}

// Retry restarts a checkout from the cached product, not from a failed order.
func (s *CheckoutService) Retry(ctx context.Context, userID int64, index int) Reply {
	return s.SelectProduct(ctx, userID, index)
}

// Cancel drops the user's open checkout.
func (s *CheckoutService) Cancel(ctx context.Context, userID int64) Reply {
	if err := s.deps.Sessions.Cancel(ctx, userID); err != nil {
		log.Printf("[Checkout] cancel for user %d failed: %v", userID, err)
		return Reply{Text: "⚠️ Could not cancel the checkout. Please try again."}
	}
	return Reply{Text: "Checkout cancelled. Use /search to find something else."}
}

// HandleText feeds free text to the user's open checkout. It reports false
// when the user has no open checkout.
func (s *CheckoutService) HandleText(ctx context.Context, userID int64, text string) (Reply, bool) {
	session, err := s.deps.Sessions.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			log.Printf("[Checkout] load session for user %d failed: %v", userID, err)
		}
		return Reply{}, false
	}

	switch session.Step {
	case models.StepCollectingEmail:
		return s.handleEmail(ctx, session, text), true
	case models.StepCollectingAddress:
		return s.handleAddress(ctx, session, text), true
	case models.StepCreatingOrder:
		return Reply{Text: "⏳ Your order is being created, please wait."}, true
	default:
		return Reply{}, false
	}
}

func (s *CheckoutService) handleEmail(ctx context.Context, session *models.CheckoutSession, text string) Reply {
	_, err := s.deps.Sessions.SubmitEmail(ctx, session.UserID, text)
	switch {
	case err == nil:
		return Reply{Text: "Now send your US shipping address as\n" + addressFormatHint, Buttons: cancelButtons()}
	case errors.Is(err, ErrInvalidEmail):
		return Reply{Text: "That does not look like an email address. Please send it as <code>name@example.com</code>.", Buttons: cancelButtons()}
	default:
		return s.abort(ctx, session.UserID, session.ProductIndex, err)
	}
}

func (s *CheckoutService) handleAddress(ctx context.Context, session *models.CheckoutSession, text string) Reply {
	updated, err := s.deps.Sessions.SubmitAddress(ctx, session.UserID, text)
	switch {
	case err == nil:
		return s.placeOrder(ctx, updated)
	case errors.Is(err, ErrUnsupportedCountry):
		return Reply{Text: "Sorry, that country is not supported. We currently ship to the US only.", Buttons: cancelButtons()}
	case errors.Is(err, ErrInvalidAddress):
		return Reply{Text: "I could not read that address. Please use\n" + addressFormatHint, Buttons: cancelButtons()}
	default:
		return s.abort(ctx, session.UserID, session.ProductIndex, err)
	}
}

// placeOrder creates the order of a session in creating_order. The result is
// dropped when the session was cancelled or replaced while the order was in flight.
func (s *CheckoutService) placeOrder(ctx context.Context, session *models.CheckoutSession) Reply {
	userID, index := session.UserID, session.ProductIndex

	wallet, err := s.deps.Wallets.GetWallet(ctx, userID)
	if err != nil {
		return s.abort(ctx, userID, index, err)
	}

	result, orderErr := s.deps.Gateway.CreateOrder(ctx, session.Product, session.Email, wallet.WalletAddress, session.ShippingAddress)

	current, err := s.deps.Sessions.Complete(ctx, userID, session.Generation)
	if err != nil {
		log.Printf("[Checkout] complete session for user %d failed: %v", userID, err)
		if err := s.deps.Sessions.Cancel(ctx, userID); err != nil {
			log.Printf("[Checkout] drop session for user %d failed: %v", userID, err)
		}
	}
	if !current && err == nil {
		if orderErr == nil {
			log.Printf("[Checkout] user %d left checkout %s, discarding order %s", userID, session.Generation, result.Order.OrderID)
		} else {
			log.Printf("[Checkout] user %d left checkout %s, discarding failed order: %v", userID, session.Generation, orderErr)
		}
		return Reply{}
	}

	if orderErr != nil {
		log.Printf("[Checkout] create order for user %d failed: %v", userID, orderErr)
		var extractErr *LocatorExtractionError
		if errors.As(orderErr, &extractErr) {
			return Reply{Text: "❌ This product cannot be ordered. Please /search for another one."}
		}
		return Reply{
			Text:    "❌ Order failed: " + html.EscapeString(providerErrorText(orderErr)),
			Buttons: [][]Button{{{Label: "Try again", Data: retryData(index)}}},
		}
	}

	var signature *SignatureResult
	if result.Outcome == OutcomeRequiresSignature {
		signature = s.deps.Signer.CompleteSignature(ctx, SignatureRequest{
			UserID:                userID,
			OrderID:               result.Order.OrderID,
			PayerAddress:          wallet.WalletAddress,
			PayerEmail:            wallet.Email,
			SerializedTransaction: result.SerializedTransaction,
			Chain:                 result.Chain,
		})
	}

	s.recordOrder(ctx, userID, session, wallet, result, signature)
	return s.orderReply(userID, session, result, signature)
}

func (s *CheckoutService) orderReply(userID int64, session *models.CheckoutSession, result *OrderResult, signature *SignatureResult) Reply {
	index := session.ProductIndex
	orderID := html.EscapeString(result.Order.OrderID)

	switch result.Outcome {
	case OutcomeInsufficientFunds:
		return Reply{
			Text: "💸 Insufficient funds for this order. Top up your wallet and try again.",
			Buttons: [][]Button{
				{{Label: "Top up wallet", URL: s.deps.Wallets.TopUpURL()}},
				{{Label: "Try again", Data: retryData(index)}},
			},
		}
	case OutcomeAddressRequired:
		return Reply{
			Text:    "📦 The store needs a complete shipping address for this product. Please try again and check the address.",
			Buttons: [][]Button{{{Label: "Try again", Data: retryData(index)}}},
		}
	case OutcomeRequiresSignature:
		return signatureReply(orderID, index, signature)
	default:
		if s.deps.Scheduler != nil {
			s.deps.Scheduler.Watch(userID, result.Order.OrderID)
		}
		return Reply{Text: fmt.Sprintf("✅ Order <code>%s</code> placed and paid. I will let you know when it completes.", orderID)}
	}
}

func signatureReply(orderID string, index int, result *SignatureResult) Reply {
	switch {
	case result.ManualApproval != nil:
		text := fmt.Sprintf("✍️ Order <code>%s</code> is waiting for your approval.\nSigner: <code>%s</code>",
			orderID, html.EscapeString(result.ManualApproval.RequiredSignerLocator))
		reply := Reply{Text: text}
		if result.ManualApproval.ApprovalURL != "" {
			reply.Buttons = [][]Button{{{Label: "Approve payment", URL: result.ManualApproval.ApprovalURL}}}
		}
		return reply
	case result.Success:
		return Reply{Text: fmt.Sprintf("✅ Payment for order <code>%s</code> submitted (transaction <code>%s</code>). I will let you know when it completes.",
			orderID, html.EscapeString(result.TransactionID))}
	default:
		return Reply{
			Text:    "❌ Signing failed: " + html.EscapeString(result.Error),
			Buttons: [][]Button{{{Label: "Try again", Data: retryData(index)}}},
		}
	}
}

// recordOrder stores the history row of a created order. signature is nil
// unless the order needed a signed payment.
func (s *CheckoutService) recordOrder(ctx context.Context, userID int64, session *models.CheckoutSession, wallet *models.WalletUser, result *OrderResult, signature *SignatureResult) {
	record := &models.OrderRecord{
		OrderID:      result.Order.OrderID,
		UserID:       userID,
		ProductTitle: session.Product.Title,
		Locator:      result.Locator,
		Attempts:     result.Attempts,
		Outcome:      string(result.Outcome),
		Status:       string(OrderStatusPending),
		PayerAddress: wallet.WalletAddress,
	}
	if total := result.Order.Quote.TotalPrice; total != nil {
		record.TotalAmount = total.Amount
		record.Currency = total.Currency
	}
	switch {
	case signature == nil:
	case signature.ManualApproval != nil:
		record.Signing = models.SigningApprovalRequired
	case signature.Success:
		record.Signing = models.SigningSubmitted
		record.TransactionID = signature.TransactionID
	default:
		record.Signing = models.SigningFailed
	}
	if s.deps.Orders != nil {
		if err := s.deps.Orders.SaveOrder(ctx, record); err != nil {
			log.Printf("[Checkout] save order %s failed: %v", record.OrderID, err)
		}
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyOrderPlaced(ctx, OrderPlacedNotification{
			OrderID:      result.Order.OrderID,
			UserID:       userID,
			ProductTitle: session.Product.Title,
			Outcome:      result.Outcome,
			Total:        result.Order.Quote.TotalPrice,
		})
	}
}

func (s *CheckoutService) connectWalletReply(ctx context.Context, userID int64) Reply {
	link, err := s.deps.Wallets.CreateAuthLink(ctx, userID)
	if err != nil {
		log.Printf("[Checkout] auth link for user %d failed: %v", userID, err)
		return Reply{Text: "⚠️ Could not create a wallet link. Please try /wallet later."}
	}
	return Reply{
		Text:    "👛 Connect a wallet first, then pick the product again.",
		Buttons: [][]Button{{{Label: "Connect wallet", URL: link}}},
	}
}

// abort ends the checkout after an unexpected error.
func (s *CheckoutService) abort(ctx context.Context, userID int64, index int, cause error) Reply {
	log.Printf("[Checkout] checkout for user %d aborted: %v", userID, cause)
	if err := s.deps.Sessions.Cancel(ctx, userID); err != nil {
		log.Printf("[Checkout] drop session for user %d failed: %v", userID, err)
	}
	return s.failureReply(index)
}

func (s *CheckoutService) failureReply(index int) Reply {
	return Reply{
		Text:    "⚠️ Something went wrong with your checkout. Please try again.",
		Buttons: [][]Button{{{Label: "Try again", Data: retryData(index)}}},
	}
}

func providerErrorText(err error) string {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Message != "" {
		return providerErr.Message
	}
	return err.Error()
}

func retryData(index int) string {
	return CallbackRetry + ":" + strconv.Itoa(index)
}

func cancelButtons() [][]Button {
	return [][]Button{{{Label: "Cancel", Data: CallbackCancel}}}
}

// ParseCallback splits callback data such as "buy:2" into action and index.
func ParseCallback(data string) (action string, index int, ok bool) {
	action, arg, hasArg := strings.Cut(data, ":")
	if !hasArg {
		return action, 0, action == CallbackCancel
	}
	index, err := strconv.Atoi(arg)
	if err != nil || index < 0 {
		return "", 0, false
	}
	return action, index, action == CallbackBuy || action == CallbackRetry
}

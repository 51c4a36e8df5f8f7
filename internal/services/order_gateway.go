package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/walletshop/internal/metrics"
	"github.com/example/walletshop/internal/models"
)

// OrderOutcome classifies a created order.
type OrderOutcome string

const (
	OutcomeInsufficientFunds OrderOutcome = "insufficient_funds"
	OutcomeAddressRequired   OrderOutcome = "address_required"
	OutcomeRequiresSignature OrderOutcome = "requires_signature"
	OutcomeAutoCompleted     OrderOutcome = "auto_completed"
)

const (
	paymentStatusInsufficientFunds = "crypto-payer-insufficient-funds"
	quoteStatusRequiresAddress     = "requires-physical-address"
)

// OrderResult is the classified result of a successful CreateOrder call.
type OrderResult struct {
	Outcome               OrderOutcome
	Order                 *Order
	SerializedTransaction string
	Chain                 string
	Locator               string
	Attempts              int
}

// OrderCreator is the provider call the gateway retries.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
}

type attemptKind int

const (
	attemptAccepted attemptKind = iota
	attemptRetryableNotFound
	attemptFatal
)

type attemptResult struct {
	kind  attemptKind
	order *Order
	err   error
}

func classifyAttempt(order *Order, err error) attemptResult {
	if err == nil {
		return attemptResult{kind: attemptAccepted, order: order}
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.IsNotFound() {
		return attemptResult{kind: attemptRetryableNotFound, err: err}
	}
	return attemptResult{kind: attemptFatal, err: err}
}

// OrderGateway creates provider orders, trying each locator encoding of the
// product in turn until the provider accepts one.
type OrderGateway struct {
	provider OrderCreator
	chain    string
	currency string
}

// NewOrderGateway creates an OrderGateway paying with currency on chain.
func NewOrderGateway(provider OrderCreator, chain, currency string) *OrderGateway {
	return &OrderGateway{provider: provider, chain: chain, currency: currency}
}

// CreateOrder places an order for product paid from payerAddress.
// It makes at most one provider call per locator variant.
func (g *OrderGateway) CreateOrder(ctx context.Context, product models.Product, email, payerAddress string, address *models.PhysicalAddress) (*OrderResult, error) {
	variants, err := LocatorVariants(product.ExternalURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, locator := range variants {
		req := CreateOrderRequest{
			Recipient: OrderRecipient{Email: email, PhysicalAddress: address},
			Payment: OrderPaymentRequest{
				Method:       g.chain,
				Currency:     g.currency,
				PayerAddress: payerAddress,
			},
			LineItems: []OrderLineItemRequest{{ProductLocator: locator}},
		}

		attempt := classifyAttempt(g.provider.CreateOrder(ctx, req))
		switch attempt.kind {
		case attemptAccepted:
			metrics.OrderAttempt("accepted")
			log.Printf("[OrderGateway] attempt %d/%d locator=%q accepted order=%s", i+1, len(variants), locator, attempt.order.OrderID)
			result := g.classify(attempt.order)
			result.Locator = locator
			result.Attempts = i + 1
			metrics.OrderOutcome(string(result.Outcome))
			return result, nil
		case attemptRetryableNotFound:
			metrics.OrderAttempt("not_found")
			log.Printf("[OrderGateway] attempt %d/%d locator=%q not found: %v", i+1, len(variants), locator, attempt.err)
			lastErr = attempt.err
		default:
			metrics.OrderAttempt("error")
			log.Printf("[OrderGateway] attempt %d/%d locator=%q failed: %v", i+1, len(variants), locator, attempt.err)
			return nil, fmt.Errorf("create order: %w", attempt.err)
		}
	}
	return nil, fmt.Errorf("create order: all %d product locators rejected: %w", len(variants), lastErr)
}

func (g *OrderGateway) classify(order *Order) *OrderResult {
	result := &OrderResult{Order: order, Outcome: ClassifyOrder(order)}
	if result.Outcome == OutcomeRequiresSignature {
		result.SerializedTransaction = order.SerializedTransaction()
		result.Chain = order.Payment.Preparation.Chain
		if result.Chain == "" {
			result.Chain = g.chain
		}
	}
	return result
}

// ClassifyOrder maps a provider order to the action the buyer has to take.
func ClassifyOrder(order *Order) OrderOutcome {
	switch {
	case order.Payment.Status == paymentStatusInsufficientFunds:
		return OutcomeInsufficientFunds
	case order.Quote.Status == quoteStatusRequiresAddress:
		return OutcomeAddressRequired
	case order.SerializedTransaction() != "":
		return OutcomeRequiresSignature
	default:
		return OutcomeAutoCompleted
	}
}

package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/walletshop/internal/models"
)

// fakeOrderProvider serves POST /orders, answering each call with the next
// scripted response.
type fakeOrderProvider struct {
	mu        sync.Mutex
	responses []fakeResponse
	locators  []string
}

type fakeResponse struct {
	status int
	body   any
}

func (f *fakeOrderProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var req CreateOrderRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if len(req.LineItems) > 0 {
		f.locators = append(f.locators, req.LineItems[0].ProductLocator)
	}

	idx := len(f.locators) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	resp := f.responses[idx]
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_ = json.NewEncoder(w).Encode(resp.body)
}

func (f *fakeOrderProvider) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.locators...)
}

func newGatewayWithFake(t *testing.T, responses ...fakeResponse) (*OrderGateway, *fakeOrderProvider) {
	t.Helper()
	fake := &fakeOrderProvider{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := NewCrossmintClient(srv.URL, "test-key")
	return NewOrderGateway(client, "base-sepolia", "usdc"), fake
}

var notFoundResponse = fakeResponse{
	status: http.StatusBadRequest,
	body:   map[string]any{"error": true, "message": "Product not found"},
}

func createdOrder(order map[string]any) fakeResponse {
	return fakeResponse{status: http.StatusCreated, body: map[string]any{"clientSecret": "cs", "order": order}}
}

var testProduct = models.Product{
	Title:       "Headphones",
	Price:       "$99.99",
	ExternalURL: "https://www.amazon.com/Sony/dp/B000XXXXXX/ref=sr_1_1",
}

var testAddress = &models.PhysicalAddress{
	Name: "John Doe", Line1: "123 Main St", City: "Austin", State: "TX", PostalCode: "73301", Country: "US",
}

func TestOrderGatewayRetriesNotFoundLocators(t *testing.T) {
	gateway, fake := newGatewayWithFake(t,
		notFoundResponse,
		notFoundResponse,
		createdOrder(map[string]any{
			"orderId": "order-1",
			"phase":   "payment",
			"quote":   map[string]any{"status": "valid", "totalPrice": map[string]any{"amount": "99.99", "currency": "usdc"}},
			"payment": map[string]any{
				"status": "awaiting-payment",
				"preparation": map[string]any{
					"chain":                 "base-sepolia",
					"payerAddress":          "0xabc",
					"serializedTransaction": "0xdeadbeef",
				},
			},
		}),
	)

	result, err := gateway.CreateOrder(context.Background(), testProduct, "john@example.com", "0xabc", testAddress)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"amazon:B000XXXXXX",
		"amazon:https://www.amazon.com/dp/B000XXXXXX",
		"B000XXXXXX",
	}, fake.calls())
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "B000XXXXXX", result.Locator)
	assert.Equal(t, "order-1", result.Order.OrderID)
	assert.Equal(t, OutcomeRequiresSignature, result.Outcome)
	assert.Equal(t, "0xdeadbeef", result.SerializedTransaction)
	assert.Equal(t, "base-sepolia", result.Chain)
}

func TestOrderGatewayExhaustsVariants(t *testing.T) {
	gateway, fake := newGatewayWithFake(t, notFoundResponse)

	_, err := gateway.CreateOrder(context.Background(), testProduct, "john@example.com", "0xabc", testAddress)
	require.Error(t, err)

	variants, _ := LocatorVariants(testProduct.ExternalURL)
	assert.Len(t, fake.calls(), len(variants))

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "Product not found", providerErr.Message)
}

func TestOrderGatewayStopsOnFatalError(t *testing.T) {
	gateway, fake := newGatewayWithFake(t,
		notFoundResponse,
		fakeResponse{status: http.StatusUnauthorized, body: map[string]any{"message": "invalid api key"}},
	)

	_, err := gateway.CreateOrder(context.Background(), testProduct, "john@example.com", "0xabc", testAddress)
	require.Error(t, err)
	assert.Len(t, fake.calls(), 2)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOrderGatewayNonNotFoundBadRequestIsFatal(t *testing.T) {
	gateway, fake := newGatewayWithFake(t,
		fakeResponse{status: http.StatusBadRequest, body: map[string]any{"message": "recipient email is invalid"}},
	)

	_, err := gateway.CreateOrder(context.Background(), testProduct, "john@example.com", "0xabc", testAddress)
	require.Error(t, err)
	assert.Len(t, fake.calls(), 1)
}

func TestOrderGatewayRejectsUnrecognizedURL(t *testing.T) {
	gateway, fake := newGatewayWithFake(t, notFoundResponse)

	product := testProduct
	product.ExternalURL = "https://www.amazon.com/s?k=headphones"
	_, err := gateway.CreateOrder(context.Background(), product, "john@example.com", "0xabc", testAddress)

	var extractErr *LocatorExtractionError
	assert.ErrorAs(t, err, &extractErr)
	assert.Empty(t, fake.calls())
}

func TestClassifyOrder(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  OrderOutcome
	}{
		{
			name: "insufficient funds wins over everything",
			order: Order{
				Quote: OrderQuote{Status: quoteStatusRequiresAddress},
				Payment: OrderPayment{
					Status:      paymentStatusInsufficientFunds,
					Preparation: &PaymentPreparation{SerializedTransaction: "0x1"},
				},
			},
			want: OutcomeInsufficientFunds,
		},
		{
			name: "address required",
			order: Order{
				Quote:   OrderQuote{Status: quoteStatusRequiresAddress},
				Payment: OrderPayment{Preparation: &PaymentPreparation{SerializedTransaction: "0x1"}},
			},
			want: OutcomeAddressRequired,
		},
		{
			name:  "requires signature",
			order: Order{Payment: OrderPayment{Preparation: &PaymentPreparation{SerializedTransaction: "0x1"}}},
			want:  OutcomeRequiresSignature,
		},
		{
			name:  "auto completed without preparation",
			order: Order{Payment: OrderPayment{Status: "completed"}},
			want:  OutcomeAutoCompleted,
		},
		{
			name:  "auto completed with empty preparation",
			order: Order{Payment: OrderPayment{Preparation: &PaymentPreparation{Chain: "base"}}},
			want:  OutcomeAutoCompleted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOrder(&tt.order))
		})
	}
}

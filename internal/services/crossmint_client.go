package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/walletshop/internal/models"
)

const defaultCrossmintBaseURL = "https://staging.crossmint.com/api/2022-06-09"

// ErrProviderNotConfigured is returned when the wallet provider API key is missing.
var ErrProviderNotConfigured = errors.New("wallet provider API key is not configured")

// ProviderError is a non-2xx answer from the wallet provider.
type ProviderError struct {
	Status  int
	Message string
	Body    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider request failed: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider request failed: status %d, body: %s", e.Status, e.Body)
}

// IsNotFound reports whether the provider rejected the request because a
// referenced resource could not be resolved.
func (e *ProviderError) IsNotFound() bool {
	if e.Status != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(e.Message + " " + e.Body)
	return strings.Contains(msg, "not found")
}

// Money is an amount as the provider serializes it.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentPreparation carries the unsigned transaction for crypto payments.
type PaymentPreparation struct {
	Chain                 string `json:"chain,omitempty"`
	PayerAddress          string `json:"payerAddress,omitempty"`
	SerializedTransaction string `json:"serializedTransaction,omitempty"`
}

// OrderPayment is the payment section of a provider order.
type OrderPayment struct {
	Status      string              `json:"status"`
	Method      string              `json:"method,omitempty"`
	Currency    string              `json:"currency,omitempty"`
	Preparation *PaymentPreparation `json:"preparation,omitempty"`
}

// OrderQuote is the pricing section of a provider order.
type OrderQuote struct {
	Status     string `json:"status"`
	TotalPrice *Money `json:"totalPrice,omitempty"`
}

// OrderLineItem is one line of a provider order.
type OrderLineItem struct {
	ProductLocator string          `json:"productLocator,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Order is the provider's view of an order.
type Order struct {
	OrderID   string          `json:"orderId"`
	Phase     string          `json:"phase"`
	Quote     OrderQuote      `json:"quote"`
	Payment   OrderPayment    `json:"payment"`
	LineItems []OrderLineItem `json:"lineItems,omitempty"`
}

// SerializedTransaction returns the unsigned payload, if the provider prepared one.
func (o *Order) SerializedTransaction() string {
	if o.Payment.Preparation == nil {
		return ""
	}
	return o.Payment.Preparation.SerializedTransaction
}

// OrderRecipient is who receives a physical order.
type OrderRecipient struct {
	Email           string                  `json:"email"`
	PhysicalAddress *models.PhysicalAddress `json:"physicalAddress,omitempty"`
}

// OrderPaymentRequest describes how the order will be paid.
type OrderPaymentRequest struct {
	Method       string `json:"method"`
	Currency     string `json:"currency"`
	PayerAddress string `json:"payerAddress"`
}

// OrderLineItemRequest references one product by locator.
type OrderLineItemRequest struct {
	ProductLocator string `json:"productLocator"`
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	Recipient OrderRecipient         `json:"recipient"`
	Payment   OrderPaymentRequest    `json:"payment"`
	LineItems []OrderLineItemRequest `json:"lineItems"`
}

type createOrderResponse struct {
	ClientSecret string `json:"clientSecret"`
	Order        Order  `json:"order"`
}

// DelegatedSigner is a signer registered on a wallet.
type DelegatedSigner struct {
	Signer        string                     `json:"signer"`
	Locator       string                     `json:"locator,omitempty"`
	ChainStatuses map[string]json.RawMessage `json:"chains,omitempty"`
}

// TransactionResult is the provider's answer to a submitted transaction.
type TransactionResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TokenBalance is the balance of one token across chains.
type TokenBalance struct {
	Token    string            `json:"token"`
	Decimals int               `json:"decimals"`
	Balances map[string]string `json:"balances"`
}

// Total returns the aggregated balance of the token.
func (b TokenBalance) Total() decimal.Decimal {
	raw, ok := b.Balances["total"]
	if !ok {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value.Shift(-int32(b.Decimals))
}

// CrossmintClient talks to the wallet and headless checkout provider.
type CrossmintClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCrossmintClient creates a client. An empty baseURL selects the staging environment.
func NewCrossmintClient(baseURL, apiKey string) *CrossmintClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultCrossmintBaseURL
	}
	return &CrossmintClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the client has credentials.
func (c *CrossmintClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

type providerRequest struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

func (c *CrossmintClient) do(ctx context.Context, opts providerRequest, out any) error {
	if !c.Configured() {
		return ErrProviderNotConfigured
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(opts.Path, "/")
	if len(opts.Query) > 0 {
		endpoint += "?" + opts.Query.Encode()
	}

	var reader io.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("marshal provider payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create provider request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Status:  resp.StatusCode,
			Message: providerMessage(body),
			Body:    string(body),
		}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// providerMessage pulls a human readable message out of an error body.
func providerMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if text, ok := payload.Error.(string); ok {
		return text
	}
	return ""
}

// CreateOrder places a headless checkout order.
func (c *CrossmintClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var resp createOrderResponse
	if err := c.do(ctx, providerRequest{Method: http.MethodPost, Path: "/orders", Body: req}, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// GetOrder re-fetches an order by id.
func (c *CrossmintClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	path := "/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, providerRequest{Method: http.MethodGet, Path: path}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListSigners returns the delegated signers of a wallet.
func (c *CrossmintClient) ListSigners(ctx context.Context, walletAddress string) ([]DelegatedSigner, error) {
	var raw json.RawMessage
	path := "/wallets/" + url.PathEscape(walletAddress) + "/signers"
	if err := c.do(ctx, providerRequest{Method: http.MethodGet, Path: path}, &raw); err != nil {
		return nil, err
	}
	return decodeSigners(raw)
}

func decodeSigners(raw json.RawMessage) ([]DelegatedSigner, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var signers []DelegatedSigner
	if err := json.Unmarshal(raw, &signers); err == nil {
		return signers, nil
	}
	var wrapped struct {
		Signers []DelegatedSigner `json:"signers"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode signers: %w", err)
	}
	return wrapped.Signers, nil
}

// AddSigner registers signerLocator as a delegated signer on the wallet.
func (c *CrossmintClient) AddSigner(ctx context.Context, walletAddress, signerLocator, chain string) error {
	body := map[string]string{"signer": signerLocator}
	if chain != "" {
		body["chain"] = chain
	}
	path := "/wallets/" + url.PathEscape(walletAddress) + "/signers"
	return c.do(ctx, providerRequest{Method: http.MethodPost, Path: path, Body: body}, nil)
}

// SubmitTransaction sends a prepared transaction to be signed by signerLocator.
func (c *CrossmintClient) SubmitTransaction(ctx context.Context, walletAddress, serializedTransaction, chain, signerLocator string) (*TransactionResult, error) {
	body := map[string]any{
		"params": map[string]any{
			"calls":  []map[string]string{{"transaction": serializedTransaction}},
			"chain":  chain,
			"signer": signerLocator,
		},
	}
	var result TransactionResult
	path := "/wallets/" + url.PathEscape(walletAddress) + "/transactions"
	if err := c.do(ctx, providerRequest{Method: http.MethodPost, Path: path, Body: body}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Approval is a signature over a pending transaction.
type Approval struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// SubmitApproval forwards a user-produced approval for a pending transaction.
func (c *CrossmintClient) SubmitApproval(ctx context.Context, walletAddress, transactionID string, approval Approval) (*TransactionResult, error) {
	body := map[string][]Approval{"approvals": {approval}}
	var result TransactionResult
	path := "/wallets/" + url.PathEscape(walletAddress) + "/transactions/" + url.PathEscape(transactionID) + "/approvals"
	if err := c.do(ctx, providerRequest{Method: http.MethodPost, Path: path, Body: body}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBalances returns token balances of the wallet on chain.
func (c *CrossmintClient) GetBalances(ctx context.Context, walletAddress, chain string, tokens ...string) ([]TokenBalance, error) {
	query := url.Values{}
	if chain != "" {
		query.Set("chains", chain)
	}
	if len(tokens) > 0 {
		query.Set("tokens", strings.Join(tokens, ","))
	}
	var balances []TokenBalance
	path := "/wallets/" + url.PathEscape(walletAddress) + "/balances"
	if err := c.do(ctx, providerRequest{Method: http.MethodGet, Path: path, Query: query}, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

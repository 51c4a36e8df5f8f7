package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/store"
)

type fakeWallets struct {
	user    *models.WalletUser
	balance decimal.Decimal
	err     error
}

func (f *fakeWallets) GetWallet(ctx context.Context, userID int64) (*models.WalletUser, error) {
	if f.user == nil {
		return nil, ErrNoWallet
	}
	return f.user, nil
}

func (f *fakeWallets) Balance(ctx context.Context, user *models.WalletUser) (decimal.Decimal, error) {
	return f.balance, f.err
}

func (f *fakeWallets) CreateAuthLink(ctx context.Context, userID int64) (string, error) {
	return "https://shop.example/connect?token=t", nil
}

func (f *fakeWallets) TopUpURL() string { return "https://shop.example/wallet" }

func (f *fakeWallets) Currency() string { return "USDC" }

type fakeGateway struct {
	calls  int
	result *OrderResult
	err    error
	during func()
}

func (f *fakeGateway) CreateOrder(ctx context.Context, product models.Product, email, payerAddress string, address *models.PhysicalAddress) (*OrderResult, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	return f.result, f.err
}

type fakeSigner struct {
	requests []SignatureRequest
	result   *SignatureResult
}

func (f *fakeSigner) CompleteSignature(ctx context.Context, req SignatureRequest) *SignatureResult {
	f.requests = append(f.requests, req)
	return f.result
}

type checkoutFixture struct {
	service   *CheckoutService
	store     *store.MemoryStore
	cache     *ProductCache
	sessions  *SessionManager
	wallets   *fakeWallets
	gateway   *fakeGateway
	signer    *fakeSigner
	scheduler *fakeScheduler
}

const buyerID int64 = 42

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	backend := store.NewMemoryStore()
	cache := NewProductCache(backend)
	f := &checkoutFixture{
		store:    backend,
		cache:    cache,
		sessions: NewSessionManager(backend),
		wallets: &fakeWallets{
			user: &models.WalletUser{
				UserID:        buyerID,
				WalletAddress: testWallet,
				WalletStatus:  models.WalletStatusActive,
			},
			balance: decimal.NewFromInt(50),
		},
		gateway: &fakeGateway{result: &OrderResult{
			Outcome: OutcomeAutoCompleted,
			Order: &Order{
				OrderID: "order-1",
				Quote:   OrderQuote{TotalPrice: &Money{Amount: "19.99", Currency: "usdc"}},
			},
			Locator:  "amazon:B000XXXXXX",
			Attempts: 1,
		}},
		signer:    &fakeSigner{},
		scheduler: &fakeScheduler{},
	}
	f.service = NewCheckoutService(CheckoutDeps{
		Cache:     cache,
		Sessions:  f.sessions,
		Wallets:   f.wallets,
		Gateway:   f.gateway,
		Signer:    f.signer,
		Scheduler: f.scheduler,
		Orders:    backend,
	})
	require.NoError(t, cache.Store(context.Background(), buyerID, sampleProducts(3), "headphones"))
	return f
}

func (f *checkoutFixture) step(t *testing.T) models.CheckoutStep {
	t.Helper()
	session, err := f.sessions.Get(context.Background(), buyerID)
	require.NoError(t, err)
	return session.Step
}

func TestCheckoutFullFlowAutoCompleted(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t)

	reply := f.service.SelectProduct(ctx, buyerID, 1)
	assert.Contains(t, reply.Text, "Product 1")
	assert.Equal(t, models.StepCollectingEmail, f.step(t))

	reply, handled := f.service.HandleText(ctx, buyerID, "nope")
	assert.True(t, handled)
	assert.Contains(t, reply.Text, "email")
	assert.Equal(t, models.StepCollectingEmail, f.step(t))

	_, handled = f.service.HandleText(ctx, buyerID, "buyer@example.com")
	assert.True(t, handled)
	assert.Equal(t, models.StepCollectingAddress, f.step(t))

	reply, _ = f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin||73301|CA")
	assert.Contains(t, reply.Text, "not supported")
	assert.Equal(t, models.StepCollectingAddress, f.step(t))
	assert.Equal(t, 0, f.gateway.calls)

	reply, _ = f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")
	assert.Contains(t, reply.Text, "order-1")
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, []string{"order-1"}, f.scheduler.orders())

	_, err := f.sessions.Get(ctx, buyerID)
	assert.ErrorIs(t, err, ErrNoSession)

	record, err := f.store.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "Product 1", record.ProductTitle)
	assert.Equal(t, "19.99", record.TotalAmount)
	assert.Equal(t, "pending", record.Status)

	_, handled = f.service.HandleText(ctx, buyerID, "hello")
	assert.False(t, handled)
}

func TestCheckoutSkipsEmailWhenWalletHasOne(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t)
	f.wallets.user.Email = "known@example.com"

	reply := f.service.SelectProduct(ctx, buyerID, 0)
	assert.Contains(t, reply.Text, "shipping address")
	assert.Equal(t, models.StepCollectingAddress, f.step(t))

	session, err := f.sessions.Get(ctx, buyerID)
	require.NoError(t, err)
	assert.Equal(t, "known@example.com", session.Email)
}

func TestCheckoutSelectProductGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("index out of range", func(t *testing.T) {
		f := newCheckoutFixture(t)
		reply := f.service.SelectProduct(ctx, buyerID, 9)
		assert.Contains(t, reply.Text, "no longer available")
		_, err := f.sessions.Get(ctx, buyerID)
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("no wallet", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.wallets.user = nil
		reply := f.service.SelectProduct(ctx, buyerID, 0)
		require.Len(t, reply.Buttons, 1)
		assert.Equal(t, "https://shop.example/connect?token=t", reply.Buttons[0][0].URL)
		_, err := f.sessions.Get(ctx, buyerID)
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("zero balance", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.wallets.balance = decimal.Zero
		reply := f.service.SelectProduct(ctx, buyerID, 0)
		assert.Equal(t, "https://shop.example/wallet", reply.Buttons[0][0].URL)
		assert.Equal(t, "retry:0", reply.Buttons[1][0].Data)
		_, err := f.sessions.Get(ctx, buyerID)
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("balance check fails", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.wallets.err = errors.New("provider down")
		reply := f.service.SelectProduct(ctx, buyerID, 2)
		assert.Equal(t, "retry:2", reply.Buttons[0][0].Data)
	})
}

func TestCheckoutCancelledWhileCreatingOrder(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t)
	f.wallets.user.Email = "known@example.com"

	f.service.SelectProduct(ctx, buyerID, 0)
	f.gateway.during = func() {
		f.service.Cancel(ctx, buyerID)
	}

	reply, handled := f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")
	assert.True(t, handled)
	assert.True(t, reply.Empty())
	assert.Equal(t, 1, f.gateway.calls)

	_, err := f.sessions.Get(ctx, buyerID)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = f.store.GetOrder(ctx, "order-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.scheduler.orders())
}

func TestCheckoutReplacedWhileCreatingOrder(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t)
	f.wallets.user.Email = "known@example.com"

	f.service.SelectProduct(ctx, buyerID, 0)
	f.gateway.during = func() {
		f.service.SelectProduct(ctx, buyerID, 2)
	}

	reply, _ := f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")
	assert.True(t, reply.Empty())

	session, err := f.sessions.Get(ctx, buyerID)
	require.NoError(t, err)
	assert.Equal(t, 2, session.ProductIndex)
	assert.Equal(t, models.StepCollectingAddress, session.Step)
}

func TestCheckoutOrderOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient funds", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.wallets.user.Email = "known@example.com"
		f.gateway.result = &OrderResult{Outcome: OutcomeInsufficientFunds, Order: &Order{OrderID: "o"}}

		f.service.SelectProduct(ctx, buyerID, 1)
		reply, _ := f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")
		assert.Contains(t, reply.Text, "Insufficient funds")
		assert.Equal(t, "https://shop.example/wallet", reply.Buttons[0][0].URL)
		assert.Equal(t, "retry:1", reply.Buttons[1][0].Data)
	})

	t.Run("requires signature with manual approval", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.wallets.user.Email = "known@example.com"
		f.gateway.result = &OrderResult{
			Outcome:               OutcomeRequiresSignature,
			Order:                 &Order{OrderID: "o-sig"},
			SerializedTransaction: "0xdead",
			Chain:                 "base-sepolia",
		}
		f.signer.result = &SignatureResult{ManualApproval: &ManualApproval{
			OrderID:               "o-sig",
			RequiredSignerLocator: "email:known@example.com",
			ApprovalURL:           "https://shop.example/approve?orderId=o-sig",
		}}

		f.service.SelectProduct(ctx, buyerID, 0)
		reply, _ := f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")

		require.Len(t, f.signer.requests, 1)
		assert.Equal(t, "0xdead", f.signer.requests[0].SerializedTransaction)
		assert.Equal(t, testWallet, f.signer.requests[0].PayerAddress)
		assert.Equal(t, "known@example.com", f.signer.requests[0].PayerEmail)
		assert.Equal(t, "https://shop.example/approve?orderId=o-sig", reply.Buttons[0][0].URL)
	})

	t.Run("signing failure offers retry", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.wallets.user.Email = "known@example.com"
		f.gateway.result = &OrderResult{Outcome: OutcomeRequiresSignature, Order: &Order{OrderID: "o"}}
		f.signer.result = &SignatureResult{Error: "rejected"}

		f.service.SelectProduct(ctx, buyerID, 2)
		reply, _ := f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")
		assert.Contains(t, reply.Text, "rejected")
		assert.Equal(t, "retry:2", reply.Buttons[0][0].Data)
	})

	t.Run("provider failure ends session", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.wallets.user.Email = "known@example.com"
		f.gateway.result = nil
		f.gateway.err = &ProviderError{Status: 500, Message: "upstream exploded"}

		f.service.SelectProduct(ctx, buyerID, 0)
		reply, _ := f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")
		assert.Contains(t, reply.Text, "upstream exploded")
		_, err := f.sessions.Get(ctx, buyerID)
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestCheckoutRecordsSigningResult(t *testing.T) {
	ctx := context.Background()
	address := "John Doe|123 Main St|Austin|TX|73301|US"

	tests := []struct {
		name      string
		signature *SignatureResult
		signing   string
		txID      string
	}{
		{"auto signed", &SignatureResult{Success: true, TransactionID: "tx-77"}, models.SigningSubmitted, "tx-77"},
		{"manual approval", &SignatureResult{ManualApproval: &ManualApproval{OrderID: "o-sig"}}, models.SigningApprovalRequired, ""},
		{"signing failed", &SignatureResult{Error: "rejected"}, models.SigningFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			f.wallets.user.Email = "known@example.com"
			f.gateway.result = &OrderResult{
				Outcome:               OutcomeRequiresSignature,
				Order:                 &Order{OrderID: "o-sig"},
				SerializedTransaction: "0xdead",
				Chain:                 "base-sepolia",
			}
			f.signer.result = tt.signature

			f.service.SelectProduct(ctx, buyerID, 0)
			f.service.HandleText(ctx, buyerID, address)

			record, err := f.store.GetOrder(ctx, "o-sig")
			require.NoError(t, err)
			assert.Equal(t, tt.signing, record.Signing)
			assert.Equal(t, tt.txID, record.TransactionID)
			assert.Equal(t, string(OutcomeRequiresSignature), record.Outcome)
		})
	}
}

type failingCompleteStore struct {
	*store.MemoryStore
}

func (s failingCompleteStore) DeleteSessionIfGeneration(ctx context.Context, userID int64, generation string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestCheckoutDropsSessionWhenCompleteFails(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(t)
	f.wallets.user.Email = "known@example.com"

	sessions := NewSessionManager(failingCompleteStore{f.store})
	f.service = NewCheckoutService(CheckoutDeps{
		Cache:     f.cache,
		Sessions:  sessions,
		Wallets:   f.wallets,
		Gateway:   f.gateway,
		Signer:    f.signer,
		Scheduler: f.scheduler,
		Orders:    f.store,
	})

	f.service.SelectProduct(ctx, buyerID, 0)
	reply, handled := f.service.HandleText(ctx, buyerID, "John Doe|123 Main St|Austin|TX|73301|US")
	require.True(t, handled)
	assert.Contains(t, reply.Text, "order-1")

	_, err := sessions.Get(ctx, buyerID)
	assert.ErrorIs(t, err, ErrNoSession)

	_, handled = f.service.HandleText(ctx, buyerID, "hello")
	assert.False(t, handled)
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data   string
		action string
		index  int
		ok     bool
	}{
		{"buy:2", CallbackBuy, 2, true},
		{"retry:0", CallbackRetry, 0, true},
		{"cancel", CallbackCancel, 0, true},
		{"buy:-1", "", 0, false},
		{"buy:x", "", 0, false},
		{"sell:1", "sell", 1, false},
		{"buy", "buy", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, index, ok := ParseCallback(tt.data)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.action, action)
				assert.Equal(t, tt.index, index)
			}
		})
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/example/walletshop/internal/models"
	"github.com/example/walletshop/internal/store"
	"github.com/example/walletshop/internal/utils"
)

const linkTokenTTL = 30 * time.Minute

var (
	ErrNoWallet             = errors.New("no wallet linked")
	ErrInvalidLinkToken     = errors.New("invalid or already used link token")
	ErrInvalidWalletAddress = errors.New("invalid wallet address")
	ErrSignerNotConfigured  = errors.New("service signer is not configured")
)

// BalanceProvider reads wallet token balances.
type BalanceProvider interface {
	GetBalances(ctx context.Context, walletAddress, chain string, tokens ...string) ([]TokenBalance, error)
}

// DelegationGranter registers the service signer on a wallet.
type DelegationGranter interface {
	Grant(ctx context.Context, walletAddress, signerAddress, chain string) error
}

// WalletEvent is the payload of the wallet-created webhook.
type WalletEvent struct {
	Token           string `json:"token"`
	WalletAddress   string `json:"walletAddress"`
	CrossmintUserID string `json:"crossmintUserId"`
	Email           string `json:"email"`
	AuthToken       string `json:"authToken"`
}

// WalletConfig holds the settings WalletService needs.
type WalletConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	WebAppURL     string
	SignerAddress string
	Chain         string
	Currency      string
}

// WalletService manages the link between chat users and their wallets.
type WalletService struct {
	users      store.WalletUserStore
	cache      *ProductCache
	sessions   *SessionManager
	balances   BalanceProvider
	delegation DelegationGranter
	cfg        WalletConfig
}

// NewWalletService creates a WalletService.
func NewWalletService(users store.WalletUserStore, cache *ProductCache, sessions *SessionManager, balances BalanceProvider, delegation DelegationGranter, cfg WalletConfig) *WalletService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	cfg.WebAppURL = strings.TrimRight(cfg.WebAppURL, "/")
	return &WalletService{
		users:      users,
		cache:      cache,
		sessions:   sessions,
		balances:   balances,
		delegation: delegation,
		cfg:        cfg,
	}
}

// CreateAuthLink returns a single-use link that opens the wallet web app for userID.
// Issuing a new link invalidates the previous one.
func (s *WalletService) CreateAuthLink(ctx context.Context, userID int64) (string, error) {
	token, nonce, err := utils.GenerateToken(s.cfg.JWTSecret, userID, utils.PurposeLink, linkTokenTTL)
	if err != nil {
		return "", fmt.Errorf("sign link token: %w", err)
	}
	nonceHash, err := utils.HashSecret(nonce)
	if err != nil {
		return "", fmt.Errorf("hash link nonce: %w", err)
	}

	user, err := s.users.GetWalletUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("load wallet user: %w", err)
		}
		user = &models.WalletUser{UserID: userID, WalletStatus: models.WalletStatusPending}
	}
	user.LinkNonceHash = nonceHash
	if err := s.users.PutWalletUser(ctx, user); err != nil {
		return "", fmt.Errorf("save wallet user: %w", err)
	}

	query := url.Values{}
	query.Set("token", token)
	return s.cfg.WebAppURL + "/connect?" + query.Encode(), nil
}

// HandleWalletCreated redeems a link token and stores the created wallet.
// It returns the linked user and a session token for the web app.
func (s *WalletService) HandleWalletCreated(ctx context.Context, event WalletEvent) (*models.WalletUser, string, error) {
	claims, err := utils.ParseToken(s.cfg.JWTSecret, event.Token, utils.PurposeLink)
	if err != nil {
		return nil, "", ErrInvalidLinkToken
	}

	user, err := s.users.GetWalletUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidLinkToken
		}
		return nil, "", fmt.Errorf("load wallet user: %w", err)
	}
	if !utils.CheckSecret(user.LinkNonceHash, claims.Nonce) {
		return nil, "", ErrInvalidLinkToken
	}

	if !common.IsHexAddress(event.WalletAddress) {
		return nil, "", ErrInvalidWalletAddress
	}

	user.WalletAddress = common.HexToAddress(event.WalletAddress).Hex()
	user.CrossmintUserID = event.CrossmintUserID
	user.AuthToken = event.AuthToken
	if email, err := ValidateEmail(event.Email); err == nil {
		user.Email = email
	}
	user.WalletStatus = models.WalletStatusActive
	user.LinkNonceHash = ""
	if err := s.users.PutWalletUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("save wallet user: %w", err)
	}
	log.Printf("[Wallet] user %d linked wallet %s", user.UserID, user.WalletAddress)

	token, err := s.SessionToken(user.UserID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// SessionToken issues an API session token for userID.
func (s *WalletService) SessionToken(userID int64) (string, error) {
	token, _, err := utils.GenerateToken(s.cfg.JWTSecret, userID, utils.PurposeSession, s.cfg.SessionTTL)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Logout forgets the user's wallet, search results and open checkout.
func (s *WalletService) Logout(ctx context.Context, userID int64) error {
	if err := s.users.DeleteWalletUser(ctx, userID); err != nil {
		return fmt.Errorf("delete wallet user: %w", err)
	}
	if err := s.cache.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear search results: %w", err)
	}
	if err := s.sessions.Cancel(ctx, userID); err != nil {
		return fmt.Errorf("cancel checkout session: %w", err)
	}
	log.Printf("[Wallet] user %d logged out", userID)
	return nil
}

// GetWallet returns the user's wallet record or ErrNoWallet when the wallet
// has not been created yet.
func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*models.WalletUser, error) {
	user, err := s.users.GetWalletUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoWallet
		}
		return nil, fmt.Errorf("load wallet user: %w", err)
	}
	if !user.HasWallet() {
		return nil, ErrNoWallet
	}
	return user, nil
}

// Balance returns the wallet's balance of the checkout currency.
func (s *WalletService) Balance(ctx context.Context, user *models.WalletUser) (decimal.Decimal, error) {
	balances, err := s.balances.GetBalances(ctx, user.WalletAddress, s.cfg.Chain, s.cfg.Currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balances: %w", err)
	}

	total := decimal.Zero
	for _, balance := range balances {
		if strings.EqualFold(balance.Token, s.cfg.Currency) {
			total = total.Add(balance.Total())
		}
	}
	return total, nil
}

// Currency returns the checkout currency symbol.
func (s *WalletService) Currency() string {
	return strings.ToUpper(s.cfg.Currency)
}

// TopUpURL is where a user can fund their wallet.
func (s *WalletService) TopUpURL() string {
	return s.cfg.WebAppURL + "/wallet"
}

// EnableAutoSign delegates signing on the user's wallet to the service signer.
func (s *WalletService) EnableAutoSign(ctx context.Context, userID int64) error {
	if s.cfg.SignerAddress == "" {
		return ErrSignerNotConfigured
	}
	user, err := s.GetWallet(ctx, userID)
	if err != nil {
		return err
	}
	return s.delegation.Grant(ctx, user.WalletAddress, s.cfg.SignerAddress, s.cfg.Chain)
}

package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const evmKeypairPrefix = "evm-keypair:"

// SignerProvider lists and registers delegated signers on a wallet.
type SignerProvider interface {
	ListSigners(ctx context.Context, walletAddress string) ([]DelegatedSigner, error)
	AddSigner(ctx context.Context, walletAddress, signerLocator, chain string) error
}

// DelegationChecker answers whether the service signer may sign for a wallet.
type DelegationChecker struct {
	provider SignerProvider
}

// NewDelegationChecker creates a DelegationChecker.
func NewDelegationChecker(provider SignerProvider) *DelegationChecker {
	return &DelegationChecker{provider: provider}
}

// IsDelegated reports whether signerAddress is a delegated signer of
// walletAddress. Any failure to find out is reported as not delegated.
func (d *DelegationChecker) IsDelegated(ctx context.Context, walletAddress, signerAddress string) bool {
	if walletAddress == "" || signerAddress == "" {
		return false
	}

	signers, err := d.provider.ListSigners(ctx, walletAddress)
	if err != nil {
		log.Printf("[Delegation] list signers for %s failed: %v", walletAddress, err)
		return false
	}

	for _, signer := range signers {
		if sameSigner(signer.Signer, signerAddress) || sameSigner(signer.Locator, signerAddress) {
			return true
		}
	}
	return false
}

// Grant registers signerAddress on walletAddress unless it is already delegated.
func (d *DelegationChecker) Grant(ctx context.Context, walletAddress, signerAddress, chain string) error {
	if walletAddress == "" || signerAddress == "" {
		return fmt.Errorf("grant delegation: wallet and signer addresses are required")
	}
	if d.IsDelegated(ctx, walletAddress, signerAddress) {
		log.Printf("[Delegation] signer already delegated on %s", walletAddress)
		return nil
	}
	if err := d.provider.AddSigner(ctx, walletAddress, SignerLocator(signerAddress), chain); err != nil {
		return fmt.Errorf("grant delegation: %w", err)
	}
	log.Printf("[Delegation] signer delegated on %s (chain %s)", walletAddress, chain)
	return nil
}

// SignerLocator returns the provider locator of an EVM keypair signer.
func SignerLocator(signerAddress string) string {
	return evmKeypairPrefix + stripLocatorPrefix(signerAddress)
}

func stripLocatorPrefix(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.LastIndex(value, ":"); idx >= 0 {
		return value[idx+1:]
	}
	return value
}

func sameSigner(a, b string) bool {
	a, b = stripLocatorPrefix(a), stripLocatorPrefix(b)
	if a == "" || b == "" {
		return false
	}
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}

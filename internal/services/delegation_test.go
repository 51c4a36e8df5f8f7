package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testSigner = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
)

type fakeSignerProvider struct {
	signers   []DelegatedSigner
	listErr   error
	addErr    error
	listCalls int
	added     []string
}

func (f *fakeSignerProvider) ListSigners(ctx context.Context, walletAddress string) ([]DelegatedSigner, error) {
	f.listCalls++
	return f.signers, f.listErr
}

func (f *fakeSignerProvider) AddSigner(ctx context.Context, walletAddress, signerLocator, chain string) error {
	f.added = append(f.added, signerLocator)
	return f.addErr
}

func TestIsDelegated(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeSignerProvider
		signer   string
		want     bool
	}{
		{
			name:     "locator prefix and case differ",
			provider: &fakeSignerProvider{signers: []DelegatedSigner{{Signer: "evm-keypair:0xabcdef0123456789abcdef0123456789abcdef01"}}},
			signer:   testSigner,
			want:     true,
		},
		{
			name:     "match on locator field",
			provider: &fakeSignerProvider{signers: []DelegatedSigner{{Locator: "evm-keypair:" + testSigner}}},
			signer:   testSigner,
			want:     true,
		},
		{
			name:     "other signer",
			provider: &fakeSignerProvider{signers: []DelegatedSigner{{Signer: "evm-keypair:0x2222222222222222222222222222222222222222"}}},
			signer:   testSigner,
			want:     false,
		},
		{
			name:     "no signers",
			provider: &fakeSignerProvider{},
			signer:   testSigner,
			want:     false,
		},
		{
			name:     "provider failure",
			provider: &fakeSignerProvider{listErr: errors.New("boom")},
			signer:   testSigner,
			want:     false,
		},
		{
			name:     "missing credentials",
			provider: &fakeSignerProvider{listErr: ErrProviderNotConfigured},
			signer:   testSigner,
			want:     false,
		},
		{
			name:     "no signer configured",
			provider: &fakeSignerProvider{signers: []DelegatedSigner{{Signer: testSigner}}},
			signer:   "",
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewDelegationChecker(tt.provider)
			assert.Equal(t, tt.want, checker.IsDelegated(context.Background(), testWallet, tt.signer))
		})
	}
}

func TestGrantSkipsWhenAlreadyDelegated(t *testing.T) {
	provider := &fakeSignerProvider{signers: []DelegatedSigner{{Signer: "evm-keypair:" + testSigner}}}
	checker := NewDelegationChecker(provider)

	require.NoError(t, checker.Grant(context.Background(), testWallet, testSigner, "base-sepolia"))
	assert.Equal(t, 1, provider.listCalls)
	assert.Empty(t, provider.added)
}

func TestGrantAddsSigner(t *testing.T) {
	provider := &fakeSignerProvider{}
	checker := NewDelegationChecker(provider)

	require.NoError(t, checker.Grant(context.Background(), testWallet, testSigner, "base-sepolia"))
	assert.Equal(t, []string{"evm-keypair:" + testSigner}, provider.added)
}

func TestGrantReturnsProviderError(t *testing.T) {
	provider := &fakeSignerProvider{addErr: &ProviderError{Status: 409, Message: "conflict"}}
	checker := NewDelegationChecker(provider)

	err := checker.Grant(context.Background(), testWallet, testSigner, "base-sepolia")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 409, providerErr.Status)
}

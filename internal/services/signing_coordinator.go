package services

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/example/walletshop/internal/metrics"
)

// DelegationVerifier answers the auto-sign eligibility question.
type DelegationVerifier interface {
	IsDelegated(ctx context.Context, walletAddress, signerAddress string) bool
}

// TransactionSubmitter submits a prepared transaction with the service signer.
type TransactionSubmitter interface {
	SubmitTransaction(ctx context.Context, walletAddress, serializedTransaction, chain, signerLocator string) (*TransactionResult, error)
}

// OrderScheduler schedules the completion check of a placed order.
type OrderScheduler interface {
	Watch(userID int64, orderID string)
}

// SignatureRequest is a transaction that has to be signed to pay for an order.
type SignatureRequest struct {
	UserID                int64
	OrderID               string
	PayerAddress          string
	PayerEmail            string
	SerializedTransaction string
	Chain                 string
}

// ManualApproval tells the buyer where and as whom to approve the payment of
// an order. TransactionID stays empty until the approval page has created the
// pending wallet transaction with the payer's own signer.
type ManualApproval struct {
	OrderID               string `json:"orderId"`
	TransactionID         string `json:"transactionId,omitempty"`
	RequiredSignerLocator string `json:"requiredSignerLocator"`
	ApprovalURL           string `json:"approvalUrl,omitempty"`
}

// SignatureResult is the outcome of CompleteSignature. Exactly one of a
// submitted transaction, an error or a manual approval is set.
type SignatureResult struct {
	Success        bool            `json:"success"`
	TransactionID  string          `json:"transactionId,omitempty"`
	Error          string          `json:"error,omitempty"`
	ManualApproval *ManualApproval `json:"manualApproval,omitempty"`
}

// SigningCoordinator signs order payments with the service signer when the
// payer delegated to it, and hands back an approval link otherwise.
type SigningCoordinator struct {
	delegation    DelegationVerifier
	submitter     TransactionSubmitter
	scheduler     OrderScheduler
	signerAddress string
	webAppURL     string
}

// NewSigningCoordinator creates a SigningCoordinator. scheduler may be nil.
func NewSigningCoordinator(delegation DelegationVerifier, submitter TransactionSubmitter, scheduler OrderScheduler, signerAddress, webAppURL string) *SigningCoordinator {
	return &SigningCoordinator{
		delegation:    delegation,
		submitter:     submitter,
		scheduler:     scheduler,
		signerAddress: signerAddress,
		webAppURL:     strings.TrimRight(webAppURL, "/"),
	}
}

// CompleteSignature pays for req.OrderID and schedules its completion check.
func (s *SigningCoordinator) CompleteSignature(ctx context.Context, req SignatureRequest) *SignatureResult {
	result := s.sign(ctx, req)
	if s.scheduler != nil {
		s.scheduler.Watch(req.UserID, req.OrderID)
	}
	return result
}

func (s *SigningCoordinator) sign(ctx context.Context, req SignatureRequest) *SignatureResult {
	if !s.delegation.IsDelegated(ctx, req.PayerAddress, s.signerAddress) {
		log.Printf("[Signing] order %s: service signer not delegated on %s, manual approval required", req.OrderID, req.PayerAddress)
		metrics.Signing("manual", "approval_required")
		return &SignatureResult{ManualApproval: s.manualApproval(req)}
	}

	tx, err := s.submitter.SubmitTransaction(ctx, req.PayerAddress, req.SerializedTransaction, req.Chain, SignerLocator(s.signerAddress))
	if err != nil {
		log.Printf("[Signing] order %s: submit transaction failed: %v", req.OrderID, err)
		metrics.Signing("auto", "error")
		return &SignatureResult{Error: err.Error()}
	}

	log.Printf("[Signing] order %s: transaction %s submitted (%s)", req.OrderID, tx.ID, tx.Status)
	metrics.Signing("auto", "submitted")
	return &SignatureResult{Success: true, TransactionID: tx.ID}
}

func (s *SigningCoordinator) manualApproval(req SignatureRequest) *ManualApproval {
	locator := SignerLocator(req.PayerAddress)
	if req.PayerEmail != "" {
		locator = "email:" + req.PayerEmail
	}

	approval := &ManualApproval{
		OrderID:               req.OrderID,
		RequiredSignerLocator: locator,
	}
	if s.webAppURL != "" {
		query := url.Values{}
		query.Set("orderId", req.OrderID)
		query.Set("wallet", req.PayerAddress)
		approval.ApprovalURL = s.webAppURL + "/approve?" + query.Encode()
	}
	return approval
}

package models

import "time"

// WalletStatus describes how far wallet creation has progressed for a user.
type WalletStatus string

const (
	WalletStatusPending WalletStatus = "pending"
	WalletStatusActive  WalletStatus = "active"
)

// WalletUser links a chat user to a wallet held by the wallet provider.
type WalletUser struct {
	UserID          int64        `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	WalletAddress   string       `gorm:"index" json:"wallet_address,omitempty"`
	CrossmintUserID string       `json:"crossmint_user_id,omitempty"`
	Email           string       `json:"email,omitempty"`
	AuthToken       string       `json:"-"`
	WalletStatus    WalletStatus `gorm:"size:16" json:"wallet_status"`
	LinkNonceHash   string       `json:"-"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (WalletUser) TableName() string { return "wallet_users" }

// HasWallet reports whether the wallet-created callback has completed for the user.
func (u *WalletUser) HasWallet() bool {
	return u != nil && u.WalletAddress != "" && u.WalletStatus == WalletStatusActive
}

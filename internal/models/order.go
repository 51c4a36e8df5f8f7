package models

// Signing results stored on an OrderRecord that needed a signed payment.
const (
	SigningSubmitted        = "submitted"
	SigningApprovalRequired = "approval_required"
	SigningFailed           = "failed"
)

// OrderRecord is the local history row for an order placed with the checkout provider.
type OrderRecord struct {
	BaseModel
	OrderID       string `gorm:"uniqueIndex" json:"order_id"`
	UserID        int64  `gorm:"index" json:"user_id"`
	ProductTitle  string `json:"product_title"`
	Locator       string `json:"locator"`
	Attempts      int    `json:"attempts"`
	Outcome       string `json:"outcome"`
	Status        string `json:"status"`
	TotalAmount   string `json:"total_amount"`
	Currency      string `json:"currency"`
	Signing       string `json:"signing,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	PayerAddress  string `json:"payer_address"`
}

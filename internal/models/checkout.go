package models

import "time"

// CheckoutStep is a state of a checkout session.
type CheckoutStep string

const (
	StepProductSelected   CheckoutStep = "product_selected"
	StepCollectingEmail   CheckoutStep = "collecting_email"
	StepCollectingAddress CheckoutStep = "collecting_address"
	StepCreatingOrder     CheckoutStep = "creating_order"
	StepCompleted         CheckoutStep = "completed"
	StepCancelled         CheckoutStep = "cancelled"
)

// PhysicalAddress is a shipping address in the shape the checkout provider expects.
type PhysicalAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// CheckoutSession tracks a single purchase attempt for a user.
// Generation changes every time a purchase is started so that results of
// in-flight work for an older attempt can be told apart.
type CheckoutSession struct {
	UserID          int64            `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Generation      string           `gorm:"size:36;index" json:"generation"`
	Product         Product          `gorm:"serializer:json;type:jsonb" json:"product"`
	ProductIndex    int              `json:"product_index"`
	Email           string           `json:"email,omitempty"`
	ShippingAddress *PhysicalAddress `gorm:"serializer:json;type:jsonb" json:"shipping_address,omitempty"`
	Step            CheckoutStep     `gorm:"size:32" json:"step"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (CheckoutSession) TableName() string { return "checkout_sessions" }

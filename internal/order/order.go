package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/polkart/storefront-api/internal/pricing"
)

// Order statuses follow the payment lifecycle.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusPaid           = "PAID"
	StatusFailed         = "FAILED"
	StatusExpired        = "EXPIRED"
)

// Customer holds checkout contact and shipping details.
type Customer struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Street      string `json:"street"`
	HouseNumber string `json:"houseNumber"`
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

// Order is a persisted checkout with its full pricing breakdown, mirrored
// from pricing.Totals so webhook handlers can rebuild emails without
// recomputing against live configuration.
type Order struct {
	ID            uuid.UUID
	Number        string
	Status        string
	Currency      string
	Customer      Customer
	AppliedCode   string
	Subtotal      pricing.Money
	TierPercent   int
	TierDiscount  pricing.Money
	CodePercent   int
	CodeDiscount  pricing.Money
	TotalDiscount pricing.Money
	FinalAmount   pricing.Money
	SessionID     string
	CreatedAt     time.Time
	PaidAt        *time.Time
}

// Item is one persisted order line with its allocated discount share.
type Item struct {
	OrderID   uuid.UUID
	ProductID int64
	Name      string
	UnitPrice pricing.Money
	Qty       int
	Subtotal  pricing.Money
	Discount  pricing.Money
	Total     pricing.Money
}

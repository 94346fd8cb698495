package orders

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workflow states an order moves through as the gateway reports on it.
const (
	StatusPending       = "pending"
	StatusConfirmed     = "confirmed"
	StatusProcessing    = "processing"
	StatusPaymentFailed = "payment_failed"
)

// Payment states, tracked independently of the workflow state.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPaid    = "paid"
	PaymentStatusPending = "pending"
	PaymentStatusFailed  = "failed"
)

// Order is the storefront order row the gateway round-trips its merchant
// order id against. The storefront owns creation; this service only ever
// updates the two status columns.
type Order struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber   string    `gorm:"uniqueIndex;size:64" json:"order_number"`
	Status        string    `gorm:"size:32;index" json:"status"`
	PaymentStatus string    `gorm:"size:32;index" json:"payment_status"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `gorm:"size:8" json:"currency"`
	CustomerEmail string    `gorm:"size:255" json:"customer_email"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AutoMigrate creates or updates the orders schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Order{})
}

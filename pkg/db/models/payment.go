package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Payment records the provider settlement for an order. TransactionID is unique
// and doubles as the reconciliation idempotency key.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Method        enums.PaymentMethod `gorm:"column:method;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	TransactionID string              `gorm:"column:transaction_id;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

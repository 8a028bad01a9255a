package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Order is materialized once per provider transaction.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	TotalAmountCents int64             `gorm:"column:total_amount_cents;not null"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

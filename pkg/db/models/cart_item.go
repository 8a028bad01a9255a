package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a line in a cart. ItemKey is unique per cart: the variant id when
// known, otherwise the client composite productId::variantId.
type CartItem struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID           uuid.UUID  `gorm:"column:cart_id;type:uuid;not null"`
	ItemKey          string     `gorm:"column:item_key;not null"`
	ProductVariantID *uuid.UUID `gorm:"column:product_variant_id;type:uuid"`
	ProductID        *uuid.UUID `gorm:"column:product_id;type:uuid"`
	Quantity         int        `gorm:"column:quantity;not null"`
	PriceAtAddCents  int64      `gorm:"column:price_at_add_cents;not null"`
	Title            string     `gorm:"column:title;not null"`
	Image            *string    `gorm:"column:image"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

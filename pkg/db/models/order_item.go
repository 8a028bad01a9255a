package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// OrderItem snapshots the price paid for a variant.
type OrderItem struct {
	ID                   uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID                   `gorm:"column:order_id;type:uuid;not null"`
	ProductVariantID     uuid.UUID                   `gorm:"column:product_variant_id;type:uuid;not null"`
	Quantity             int                         `gorm:"column:quantity;not null"`
	PriceAtPurchaseCents int64                       `gorm:"column:price_at_purchase_cents;not null"`
	MappingSource        enums.LineItemMappingSource `gorm:"column:mapping_source;not null"`
	CreatedAt            time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

// LineTotalCents returns price times quantity.
func (i OrderItem) LineTotalCents() int64 {
	return i.PriceAtPurchaseCents * int64(i.Quantity)
}

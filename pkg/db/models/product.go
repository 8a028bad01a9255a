package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry. Image is the legacy inline image kept for
// products that predate product_images.
type Product struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string           `gorm:"column:name;not null"`
	Description *string          `gorm:"column:description"`
	Image       *string          `gorm:"column:image"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID"`
	Images      []ProductImage   `gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

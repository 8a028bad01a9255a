package models

import (
	"time"

	"github.com/google/uuid"
)

// Guest is an anonymous shopper session correlated through the guest cookie.
type Guest struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionToken string     `gorm:"column:session_token;not null;uniqueIndex"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
}

package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByGuest(ctx context.Context, guestID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	Delete(ctx context.Context, cartID uuid.UUID) error
}

// Remote is the server side of client cart synchronization.
type Remote interface {
	Pull(ctx context.Context) ([]Item, error)
	Push(ctx context.Context, items []Item) error
}

type guestResolver interface {
	Resolve(ctx context.Context, token string) (*models.Guest, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

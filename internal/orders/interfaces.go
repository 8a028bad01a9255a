package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
)

// Repository defines persistence operations for orders, their items, and payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sessionFetcher interface {
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

type cartStore interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByGuest(ctx context.Context, guestID uuid.UUID) (*models.Cart, error)
	Delete(ctx context.Context, cartID uuid.UUID) error
}

type guestResolver interface {
	Resolve(ctx context.Context, token string) (*models.Guest, error)
}

type variantCatalog interface {
	VariantsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
	FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	FindProductByName(ctx context.Context, name string) (*models.Product, error)
	FirstVariantOfProduct(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error)
	AnyVariant(ctx context.Context) (*models.ProductVariant, error)
}

type imageCatalog interface {
	VariantsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
	ImagesForProducts(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID][]models.ProductImage, error)
}

package guests

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/repo"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// Repository persists guest sessions.
type Repository struct {
	repo.Base
}

// NewRepository constructs a guest repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindByToken returns the guest for a session token, or nil when none exists.
func (r *Repository) FindByToken(ctx context.Context, token string) (*models.Guest, error) {
	var guest models.Guest
	err := r.DB(ctx).
		Where("session_token = ?", token).
		First(&guest).Error
	return repo.Found(&guest, err)
}

// Create inserts a guest row.
func (r *Repository) Create(ctx context.Context, guest *models.Guest) error {
	if guest.ID == uuid.Nil {
		guest.ID = uuid.New()
	}
	return r.DB(ctx).Create(guest).Error
}

package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/repo"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// Repository reads products, variants, and their images.
type Repository struct {
	repo.Base
}

// NewRepository constructs a catalog repository bound to the provided DB.
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

// VariantsByIDs loads the requested variants keyed by id, with their product preloaded.
// Unknown ids are absent from the result.
func (r *Repository) VariantsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error) {
	out := make(map[uuid.UUID]models.ProductVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var variants []models.ProductVariant
	if err := r.DB(ctx).
		Preload("Product").
		Where("id IN ?", ids).
		Find(&variants).Error; err != nil {
		return nil, err
	}
	for _, v := range variants {
		out[v.ID] = v
	}
	return out, nil
}

// FindVariant returns a single variant or nil when it does not exist.
func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.DB(ctx).
		Preload("Product").
		Where("id = ?", id).
		First(&variant).Error
	return repo.Found(&variant, err)
}

// FindProductByName returns the oldest product whose name matches exactly.
func (r *Repository) FindProductByName(ctx context.Context, name string) (*models.Product, error) {
	var product models.Product
	err := r.DB(ctx).
		Where("name = ?", name).
		Order("created_at ASC").
		Order("id ASC").
		First(&product).Error
	return repo.Found(&product, err)
}

// FirstVariantOfProduct returns the earliest variant of a product.
func (r *Repository) FirstVariantOfProduct(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.DB(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Order("id ASC").
		First(&variant).Error
	return repo.Found(&variant, err)
}

// AnyVariant returns the earliest variant in the catalog.
func (r *Repository) AnyVariant(ctx context.Context) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.DB(ctx).
		Order("created_at ASC").
		Order("id ASC").
		First(&variant).Error
	return repo.Found(&variant, err)
}

// ProductsByIDs loads products keyed by id.
func (r *Repository) ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// ImagesForProducts returns each product's images, primary first then by sort order.
func (r *Repository) ImagesForProducts(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID][]models.ProductImage, error) {
	out := make(map[uuid.UUID][]models.ProductImage, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	var images []models.ProductImage
	if err := r.DB(ctx).
		Where("product_id IN ?", productIDs).
		Order("is_primary DESC").
		Order("sort_order ASC").
		Order("created_at ASC").
		Find(&images).Error; err != nil {
		return nil, err
	}
	for _, img := range images {
		out[img.ProductID] = append(out[img.ProductID], img)
	}
	return out, nil
}

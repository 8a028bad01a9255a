package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

func TestReaderGetByIDAndTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product, variant := f.seedProduct(t, "Runner", "25.00", time.Now())
	require.NoError(t, f.conn.Create(&models.ProductImage{ID: uuid.New(), ProductID: product.ID, URL: "/img/runner.png", IsPrimary: true}).Error)
	f.seedUserCart(t, userID, cartRow(variant.ID, 2))
	f.sessions.session = &stripe.CheckoutSession{Metadata: map[string]string{"userId": userID.String()}}

	order, err := f.reconciler(t, true).Reconcile(ctx, "cs_read")
	require.NoError(t, err)

	reader, err := NewReader(f.repo, f.catalog, "https://shop.example.com/", "")
	require.NoError(t, err)

	byID, err := reader.Get(ctx, order.ID.String())
	require.NoError(t, err)
	require.NotNil(t, byID)
	byTxn, err := reader.Get(ctx, "cs_read")
	require.NoError(t, err)
	require.NotNil(t, byTxn)
	assert.Equal(t, byID.Order.ID, byTxn.Order.ID)

	assert.Equal(t, "50.00", byID.Order.TotalAmount)
	assert.Equal(t, "paid", byID.Order.Status)
	require.NotNil(t, byID.Order.Payment)
	assert.Equal(t, "cs_read", byID.Order.Payment.TransactionID)

	require.Len(t, byID.Items, 1)
	item := byID.Items[0]
	assert.Equal(t, "Runner", item.Name)
	assert.Equal(t, "https://shop.example.com/img/runner.png", item.Image)
	assert.Equal(t, "25.00", item.Price)
	assert.Equal(t, int64(5000), item.LineTotalCents)
	assert.Equal(t, "50.00", item.LineTotal)
	require.NotNil(t, item.ProductID)
	assert.Equal(t, product.ID, *item.ProductID)
}

func TestReaderFallsBackForMissingCatalogRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := uuid.New()

	order := models.Order{ID: uuid.New(), Status: enums.OrderStatusPaid, TotalAmountCents: 700}
	require.NoError(t, f.repo.CreateOrder(ctx, &order))
	require.NoError(t, f.repo.CreateOrderItems(ctx, []models.OrderItem{{
		OrderID:              order.ID,
		ProductVariantID:     variantID,
		Quantity:             1,
		PriceAtPurchaseCents: 700,
		MappingSource:        enums.MappingSourceAnyVariant,
	}}))

	reader, err := NewReader(f.repo, f.catalog, "https://shop.example.com", "")
	require.NoError(t, err)

	view, err := reader.Get(ctx, order.ID.String())
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Nil(t, view.Order.Payment)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Item "+variantID.String()[:8], view.Items[0].Name)
	assert.Equal(t, DefaultPlaceholderImage, view.Items[0].Image)
	assert.Equal(t, "any_variant", view.Items[0].MappingSource)
}

func TestReaderLegacyImageWhenNoProductImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	legacy := "legacy/mug.jpg"
	product := models.Product{ID: uuid.New(), Name: "Mug", Image: &legacy}
	require.NoError(t, f.conn.Create(&product).Error)
	variant := models.ProductVariant{ID: uuid.New(), ProductID: product.ID, SKU: "MUG"}
	require.NoError(t, f.conn.Create(&variant).Error)

	order := models.Order{ID: uuid.New(), Status: enums.OrderStatusPaid, TotalAmountCents: 100}
	require.NoError(t, f.repo.CreateOrder(ctx, &order))
	require.NoError(t, f.repo.CreateOrderItems(ctx, []models.OrderItem{{
		OrderID: order.ID, ProductVariantID: variant.ID, Quantity: 1, PriceAtPurchaseCents: 100, MappingSource: enums.MappingSourceCart,
	}}))

	reader, err := NewReader(f.repo, f.catalog, "https://shop.example.com", "https://cdn.example.com/none.png")
	require.NoError(t, err)
	view, err := reader.Get(ctx, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/legacy/mug.jpg", view.Items[0].Image)
}

func TestReaderUnknownRefIsNotAnError(t *testing.T) {
	f := newFixture(t)
	reader, err := NewReader(f.repo, f.catalog, "https://shop.example.com", "")
	require.NoError(t, err)

	for _, ref := range []string{uuid.NewString(), "cs_unknown", " "} {
		view, err := reader.Get(context.Background(), ref)
		require.NoError(t, err)
		assert.Nil(t, view, "ref %q", ref)
	}
}

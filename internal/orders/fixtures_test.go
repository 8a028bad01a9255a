package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/guests"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
)

type stubSessions struct {
	session *stripe.CheckoutSession
	err     error
	calls   int
	onGet   func()
}

func (s *stubSessions) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	s.calls++
	if s.onGet != nil {
		s.onGet()
	}
	if s.err != nil {
		return nil, s.err
	}
	session := *s.session
	session.ID = id
	return &session, nil
}

type fixture struct {
	conn     *gorm.DB
	repo     Repository
	carts    *cart.Repository
	guests   *guests.Service
	catalog  *catalog.Repository
	sessions *stubSessions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	guestSvc, err := guests.NewService(guests.ServiceParams{Repo: guests.NewRepository(conn)})
	require.NoError(t, err)
	return &fixture{
		conn:     conn,
		repo:     NewRepository(conn),
		carts:    cart.NewRepository(conn),
		guests:   guestSvc,
		catalog:  catalog.NewRepository(conn),
		sessions: &stubSessions{session: &stripe.CheckoutSession{}},
	}
}

func (f *fixture) reconciler(t *testing.T, allowAny bool) *Reconciler {
	t.Helper()
	rec, err := NewReconciler(ReconcilerParams{
		Repo:            f.repo,
		Tx:              db.Wrap(f.conn),
		Provider:        f.sessions,
		Carts:           f.carts,
		Guests:          f.guests,
		Catalog:         f.catalog,
		Outbox:          outbox.NewWriter(outbox.NewStore(f.conn), logger.Nop()),
		AllowAnyVariant: allowAny,
		Now:             func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) seedProduct(t *testing.T, name, price string, createdAt time.Time) (models.Product, models.ProductVariant) {
	t.Helper()
	product := models.Product{ID: uuid.New(), Name: name, CreatedAt: createdAt}
	require.NoError(t, f.conn.Create(&product).Error)
	variant := models.ProductVariant{
		ID:        uuid.New(),
		ProductID: product.ID,
		SKU:       name,
		Price:     decimal.RequireFromString(price),
		CreatedAt: createdAt,
	}
	require.NoError(t, f.conn.Create(&variant).Error)
	return product, variant
}

func (f *fixture) seedUserCart(t *testing.T, userID uuid.UUID, rows ...models.CartItem) models.Cart {
	t.Helper()
	c := models.Cart{ID: uuid.New(), UserID: &userID}
	require.NoError(t, f.carts.Create(context.Background(), &c))
	require.NoError(t, f.carts.ReplaceItems(context.Background(), c.ID, rows))
	return c
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func cartRow(variantID uuid.UUID, qty int) models.CartItem {
	return models.CartItem{
		ItemKey:          variantID.String(),
		ProductVariantID: &variantID,
		Quantity:         qty,
		Title:            "row",
	}
}

func sessionLine(id, name string, unitAmount, qty int64, metadata map[string]string) *stripe.LineItem {
	return &stripe.LineItem{
		ID:          id,
		Description: name,
		Quantity:    qty,
		AmountTotal: unitAmount * qty,
		Price: &stripe.Price{
			UnitAmount: unitAmount,
			Product:    &stripe.Product{Name: name, Metadata: metadata},
		},
	}
}

package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// hostedCheckout records the created session so fetching it echoes back the metadata.
type hostedCheckout struct {
	created *stripe.CheckoutSessionParams
}

func (h *hostedCheckout) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	h.created = params
	return &stripe.CheckoutSession{ID: "cs_pipeline", URL: "https://checkout.stripe.com/c/cs_pipeline"}, nil
}

func (h *hostedCheckout) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{ID: id, Metadata: h.created.Metadata}, nil
}

func TestGuestCartCheckoutReconcilesIntoOnePaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, variant := f.seedProduct(t, "Runner", "25.00", time.Now())

	guest, created, err := f.guests.GetOrCreate(ctx, "")
	require.NoError(t, err)
	require.True(t, created)

	cartSvc, err := cart.NewService(f.carts, db.Wrap(f.conn), f.guests)
	require.NoError(t, err)
	_, err = cartSvc.Push(ctx, cart.Identity{GuestToken: guest.SessionToken}, []cart.Item{{
		ID:       uuid.NewString() + "::" + variant.ID.String(),
		Name:     "Runner",
		Price:    decimal.RequireFromString("25.00"),
		Quantity: 2,
	}})
	require.NoError(t, err)

	provider := &hostedCheckout{}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Provider: provider,
		Carts:    cartSvc,
		CartRows: f.carts,
		Catalog:  f.catalog,
		BaseURL:  "https://shop.example.com",
	})
	require.NoError(t, err)

	userID := uuid.New()
	session, err := checkoutSvc.CreateSession(ctx, checkout.Input{UserID: &userID, GuestToken: guest.SessionToken})
	require.NoError(t, err)
	require.Len(t, provider.created.LineItems, 1)
	assert.Equal(t, int64(2500), *provider.created.LineItems[0].PriceData.UnitAmount)

	rec, err := NewReconciler(ReconcilerParams{
		Repo:            f.repo,
		Tx:              db.Wrap(f.conn),
		Provider:        provider,
		Carts:           f.carts,
		Guests:          f.guests,
		Catalog:         f.catalog,
		Outbox:          f.reconciler(t, true).outbox,
		AllowAnyVariant: true,
	})
	require.NoError(t, err)

	order, err := rec.Reconcile(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), order.TotalAmountCents)
	assert.Equal(t, &userID, order.UserID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, int64(2500), order.Items[0].PriceAtPurchaseCents)

	assert.Equal(t, int64(1), f.count(t, &models.Payment{}))
	assert.Zero(t, f.count(t, &models.CartItem{}))

	items, err := cartSvc.Pull(ctx, cart.Identity{UserID: &userID})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCheckoutAfterLoginChargesTheUsersLatestCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, shoe := f.seedProduct(t, "Runner", "25.00", time.Now())
	_, sock := f.seedProduct(t, "Sock", "4.00", time.Now().Add(time.Second))
	shoeID := uuid.NewString() + "::" + shoe.ID.String()
	sockID := uuid.NewString() + "::" + sock.ID.String()

	guest, _, err := f.guests.GetOrCreate(ctx, "")
	require.NoError(t, err)
	cartSvc, err := cart.NewService(f.carts, db.Wrap(f.conn), f.guests)
	require.NoError(t, err)

	_, err = cartSvc.Push(ctx, cart.Identity{GuestToken: guest.SessionToken}, []cart.Item{
		{ID: shoeID, Quantity: 1},
		{ID: sockID, Quantity: 1},
	})
	require.NoError(t, err)

	// Same browser after login: the guest cookie rides along with the user.
	userID := uuid.New()
	loggedIn := cart.Identity{UserID: &userID, GuestToken: guest.SessionToken}
	_, err = cartSvc.Push(ctx, loggedIn, []cart.Item{{ID: shoeID, Quantity: 3}})
	require.NoError(t, err)

	provider := &hostedCheckout{}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Provider: provider,
		Carts:    cartSvc,
		CartRows: f.carts,
		Catalog:  f.catalog,
		BaseURL:  "https://shop.example.com",
	})
	require.NoError(t, err)

	_, err = checkoutSvc.CreateSession(ctx, checkout.Input{UserID: &userID, GuestToken: guest.SessionToken})
	require.NoError(t, err)
	require.Len(t, provider.created.LineItems, 1)
	assert.Equal(t, int64(3), *provider.created.LineItems[0].Quantity)
	assert.Equal(t, int64(2500), *provider.created.LineItems[0].PriceData.UnitAmount)
}

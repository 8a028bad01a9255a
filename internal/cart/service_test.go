package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/guests"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

type serviceFixture struct {
	conn   *gorm.DB
	svc    Service
	guests *guests.Service
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	conn := dbtest.Open(t)
	guestSvc, err := guests.NewService(guests.ServiceParams{Repo: guests.NewRepository(conn)})
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), db.Wrap(conn), guestSvc)
	require.NoError(t, err)
	return serviceFixture{conn: conn, svc: svc, guests: guestSvc}
}

func (f serviceFixture) newGuest(t *testing.T) *models.Guest {
	t.Helper()
	guest, _, err := f.guests.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	return guest
}

func TestPullWithoutCartIsEmpty(t *testing.T) {
	f := newServiceFixture(t)
	userID := uuid.New()

	items, err := f.svc.Pull(context.Background(), Identity{UserID: &userID})
	require.NoError(t, err)
	assert.Empty(t, items)

	var carts int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Count(&carts).Error)
	assert.Zero(t, carts, "reads must not create carts")

	items, err = f.svc.Pull(context.Background(), Identity{GuestToken: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPushReplacesItemsForGuest(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	guest := f.newGuest(t)
	identity := Identity{GuestToken: guest.SessionToken}

	_, err := f.svc.Push(ctx, identity, []Item{
		{ID: "a", Name: "A", Price: decimal.NewFromInt(3), Quantity: 1},
		{ID: "b", Name: "B", Price: decimal.NewFromInt(4), Quantity: 2},
	})
	require.NoError(t, err)

	stored, err := f.svc.Push(ctx, identity, []Item{
		{ID: "b", Name: "B", Price: decimal.NewFromInt(4), Quantity: 1},
		{ID: "b", Name: "B", Price: decimal.NewFromInt(4), Quantity: 5},
		{ID: "c", Quantity: 0},
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	items, err := f.svc.Pull(ctx, identity)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, 5, items[0].Quantity)
	assert.True(t, items[0].Price.Equal(decimal.NewFromInt(4)))
}

func TestPushRequiresKnownIdentity(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Push(context.Background(), Identity{GuestToken: "stale"}, []Item{{ID: "a", Quantity: 1}})
	require.Error(t, err)
}

func TestClearKeepsCartRow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	identity := Identity{UserID: &userID}

	_, err := f.svc.Push(ctx, identity, []Item{{ID: "a", Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx, identity))

	items, err := f.svc.Pull(ctx, identity)
	require.NoError(t, err)
	assert.Empty(t, items)

	var carts int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("user_id = ?", userID).Count(&carts).Error)
	assert.Equal(t, int64(1), carts)
}

func TestMergeGuestIntoUserKeepsUserRows(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	guest := f.newGuest(t)

	_, err := f.svc.Push(ctx, Identity{UserID: &userID}, []Item{
		{ID: "shared", Quantity: 1},
		{ID: "user-only", Quantity: 2},
	})
	require.NoError(t, err)
	_, err = f.svc.Push(ctx, Identity{GuestToken: guest.SessionToken}, []Item{
		{ID: "shared", Quantity: 7},
		{ID: "guest-only", Quantity: 1},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.MergeGuestIntoUser(ctx, userID, guest.SessionToken))

	items, err := f.svc.Pull(ctx, Identity{UserID: &userID})
	require.NoError(t, err)
	got := keyed(items)
	assert.Equal(t, map[string]int{"shared": 1, "user-only": 2, "guest-only": 1}, got)

	guestItems, err := f.svc.Pull(ctx, Identity{GuestToken: guest.SessionToken})
	require.NoError(t, err)
	assert.Empty(t, guestItems)

	var guestCarts int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("guest_id = ?", guest.ID).Count(&guestCarts).Error)
	assert.Zero(t, guestCarts)
}

func TestMergeGuestIntoUserWithoutGuestCartIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	userID := uuid.New()
	guest := f.newGuest(t)

	require.NoError(t, f.svc.MergeGuestIntoUser(context.Background(), userID, guest.SessionToken))
	require.NoError(t, f.svc.MergeGuestIntoUser(context.Background(), userID, ""))

	var carts int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Count(&carts).Error)
	assert.Zero(t, carts)
}

func TestAuthenticatedPushAbsorbsGuestCart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	guest := f.newGuest(t)

	_, err := f.svc.Push(ctx, Identity{GuestToken: guest.SessionToken}, []Item{
		{ID: "a", Quantity: 1},
		{ID: "b", Quantity: 1},
	})
	require.NoError(t, err)

	loggedIn := Identity{UserID: &userID, GuestToken: guest.SessionToken}
	_, err = f.svc.Push(ctx, loggedIn, []Item{{ID: "a", Quantity: 3}})
	require.NoError(t, err)

	var guestCarts int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("guest_id = ?", guest.ID).Count(&guestCarts).Error)
	assert.Zero(t, guestCarts)

	// The checkout-time merge must not bring the guest lines back.
	require.NoError(t, f.svc.MergeGuestIntoUser(ctx, userID, guest.SessionToken))
	items, err := f.svc.Pull(ctx, loggedIn)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 3}, keyed(items))
}

func TestAuthenticatedPullAbsorbsGuestCart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	guest := f.newGuest(t)

	_, err := f.svc.Push(ctx, Identity{UserID: &userID}, []Item{{ID: "a", Quantity: 2}})
	require.NoError(t, err)
	_, err = f.svc.Push(ctx, Identity{GuestToken: guest.SessionToken}, []Item{
		{ID: "a", Quantity: 9},
		{ID: "b", Quantity: 1},
	})
	require.NoError(t, err)

	items, err := f.svc.Pull(ctx, Identity{UserID: &userID, GuestToken: guest.SessionToken})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, keyed(items))
}

func TestAuthenticatedClearDropsGuestCart(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	guest := f.newGuest(t)

	_, err := f.svc.Push(ctx, Identity{GuestToken: guest.SessionToken}, []Item{{ID: "a", Quantity: 1}})
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx, Identity{UserID: &userID, GuestToken: guest.SessionToken}))

	require.NoError(t, f.svc.MergeGuestIntoUser(ctx, userID, guest.SessionToken))
	items, err := f.svc.Pull(ctx, Identity{UserID: &userID})
	require.NoError(t, err)
	assert.Empty(t, items)
}

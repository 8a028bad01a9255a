package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

func seedOrderPaid(t *testing.T, conn *gorm.DB, writer *Writer, n int) {
	t.Helper()
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < n; i++ {
			event := OrderPaid(payloads.OrderPaidEvent{OrderID: uuid.New(), TotalAmountCents: int64(i + 1)}, nil)
			if err := writer.Emit(context.Background(), tx, event); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestStoreDeliveryLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	seedOrderPaid(t, conn, NewWriter(store, nil), 3)
	ctx := context.Background()

	rows, err := store.Undelivered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := store.MarkDelivered(ctx, tx, rows[0].ID, time.Now()); err != nil {
			return err
		}
		if err := store.RecordFailure(ctx, tx, rows[1].ID, errors.New("pubsub unavailable")); err != nil {
			return err
		}
		return store.Park(ctx, tx, rows[2].ID, errors.New("bad payload"), 5)
	}))

	var claimed []uuid.UUID
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		batch, err := store.Claim(ctx, tx, 10, 5)
		for _, row := range batch {
			claimed = append(claimed, row.ID)
			assert.Equal(t, 1, row.AttemptCount)
			require.NotNil(t, row.LastError)
			assert.Equal(t, "pubsub unavailable", *row.LastError)
		}
		return err
	}))
	assert.Equal(t, []uuid.UUID{rows[1].ID}, claimed)

	backlog, err := store.Backlog(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), backlog)

	undelivered, err := store.Undelivered(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, undelivered, 2, "parked rows stay visible for replay")
}

func TestStoreClaimHonoursLimitAndOrder(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	seedOrderPaid(t, conn, NewWriter(store, nil), 4)
	ctx := context.Background()

	all, err := store.Undelivered(ctx, 10)
	require.NoError(t, err)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		batch, err := store.Claim(ctx, tx, 2, 5)
		require.Len(t, batch, 2)
		assert.Equal(t, all[0].ID, batch[0].ID)
		assert.Equal(t, all[1].ID, batch[1].ID)
		return err
	}))
}

func TestStoreRequiresTransactionForWrites(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	assert.ErrorIs(t, store.MarkDelivered(ctx, nil, uuid.New(), time.Now()), errTxRequired)
	assert.ErrorIs(t, store.RecordFailure(ctx, nil, uuid.New(), errors.New("x")), errTxRequired)
	_, err := store.Claim(ctx, nil, 1, 1)
	assert.ErrorIs(t, err, errTxRequired)
}

func TestClipBoundsLastError(t *testing.T) {
	long := errors.New(strings.Repeat("x", lastErrorLimit+10))
	assert.Len(t, clip(long), lastErrorLimit)
	assert.Empty(t, clip(nil))
}

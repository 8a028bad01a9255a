package wishlist

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestStoreAddDeduplicatesByID(t *testing.T) {
	store := NewStore(Item{ID: "p1", Name: "Lamp"}, Item{ID: "p1", Name: "Lamp again"})
	store.Add(Item{ID: "p2", Name: "Chair", Price: price("49.00")})
	store.Add(Item{ID: " p2 ", Name: "Chair copy"})
	store.Add(Item{ID: ""})

	items := store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "Lamp", items[0].Name)
	assert.Equal(t, "Chair", items[1].Name)
	assert.Equal(t, 2, store.Count())
}

func TestStoreToggle(t *testing.T) {
	store := NewStore()

	assert.True(t, store.Toggle(Item{ID: "p1", Name: "Lamp"}))
	assert.True(t, store.Contains("p1"))

	assert.False(t, store.Toggle(Item{ID: "p1"}))
	assert.False(t, store.Contains("p1"))
	assert.Zero(t, store.Count())

	assert.False(t, store.Toggle(Item{ID: "  "}))
}

func TestStoreRemoveAndClear(t *testing.T) {
	store := NewStore(Item{ID: "a"}, Item{ID: "b"}, Item{ID: "c"})

	store.Remove("b")
	store.Remove("missing")
	require.Len(t, store.Items(), 2)
	assert.Equal(t, "c", store.Items()[1].ID)

	store.Clear()
	assert.Empty(t, store.Items())
}

func TestStoreNotifiesOnlyOnChange(t *testing.T) {
	store := NewStore()
	var snapshots [][]Item
	cancel := store.Subscribe(func(items []Item) { snapshots = append(snapshots, items) })

	store.Add(Item{ID: "a"})
	store.Add(Item{ID: "a"})
	store.Remove("zzz")
	store.Toggle(Item{ID: "b"})
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 2)

	cancel()
	store.Clear()
	assert.Len(t, snapshots, 2)
}

func TestStoreItemsIsSnapshot(t *testing.T) {
	store := NewStore(Item{ID: "a", Name: "Lamp"})
	items := store.Items()
	items[0].Name = "changed"
	assert.Equal(t, "Lamp", store.Items()[0].Name)
}

package cart

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Store is the client-held cart. It keeps at most one line per key and every
// quantity at one or more. Subscribers are notified after each mutation with a
// snapshot of the items.
type Store struct {
	mu      sync.Mutex
	items   []Item
	subs    map[int]func([]Item)
	nextSub int
}

// NewStore seeds a store with the given items.
func NewStore(initial ...Item) *Store {
	return &Store{
		items: Normalize(initial),
		subs:  make(map[int]func([]Item)),
	}
}

// Subscribe registers fn for change notifications and returns its cancel func.
func (s *Store) Subscribe(fn func([]Item)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Add inserts item. When a line with the same key exists its quantity grows by
// item's and its name, price and image take item's values. A quantity below
// one counts as one.
func (s *Store) Add(item Item) {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	s.mutate(func(items []Item) []Item {
		key := item.Key()
		for i := range items {
			if items[i].Key() == key {
				item.Quantity += items[i].Quantity
				items[i] = item
				return items
			}
		}
		return append(items, item)
	})
}

// Remove drops the line with the given id or key.
func (s *Store) Remove(id string) {
	s.mutate(func(items []Item) []Item {
		key := keyFor(id)
		out := items[:0]
		for _, it := range items {
			if it.Key() != key {
				out = append(out, it)
			}
		}
		return out
	})
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (s *Store) UpdateQuantity(id string, quantity int) {
	if quantity < 1 {
		s.Remove(id)
		return
	}
	s.mutate(func(items []Item) []Item {
		key := keyFor(id)
		for i := range items {
			if items[i].Key() == key {
				items[i].Quantity = quantity
			}
		}
		return items
	})
}

// Clear removes every line.
func (s *Store) Clear() {
	s.mutate(func([]Item) []Item { return nil })
}

// MergeOnPull folds server items into the store. Local lines win on conflicting
// keys, so repeated pulls of the same server state are idempotent.
func (s *Store) MergeOnPull(server []Item) {
	s.mutate(func(local []Item) []Item {
		merged := make([]Item, 0, len(server)+len(local))
		merged = append(merged, server...)
		merged = append(merged, local...)
		return Normalize(merged)
	})
}

// Items returns a snapshot of the lines.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// Count returns the total quantity across lines.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, it := range s.items {
		count += it.Quantity
	}
	return count
}

// Total returns the sum of price times quantity.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (s *Store) mutate(fn func([]Item) []Item) {
	s.mu.Lock()
	s.items = fn(s.items)
	snapshot := cloneItems(s.items)
	subs := make([]func([]Item), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
}

func keyFor(id string) string {
	return Item{ID: id}.Key()
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

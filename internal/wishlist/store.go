package wishlist

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Item is a liked product as the storefront renders it.
type Item struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price,omitempty"`
	Image string           `json:"image,omitempty"`
}

// Store holds the shopper's wishlist, one entry per id, in insertion order.
type Store struct {
	mu      sync.Mutex
	items   []Item
	subs    map[int]func([]Item)
	nextSub int
}

func NewStore(initial ...Item) *Store {
	s := &Store{subs: make(map[int]func([]Item))}
	for _, it := range initial {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" || indexOf(s.items, it.ID) >= 0 {
			continue
		}
		s.items = append(s.items, it)
	}
	return s
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

// Add is a no-op when the id is blank or already present.
func (s *Store) Add(item Item) {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return
	}
	s.mutate(func(items []Item) ([]Item, bool) {
		if indexOf(items, item.ID) >= 0 {
			return items, false
		}
		return append(items, item), true
	})
}

func (s *Store) Remove(id string) {
	id = strings.TrimSpace(id)
	s.mutate(func(items []Item) ([]Item, bool) {
		idx := indexOf(items, id)
		if idx < 0 {
			return items, false
		}
		return append(items[:idx], items[idx+1:]...), true
	})
}

// Toggle removes the item when present and adds it otherwise. It reports
// whether the item is in the wishlist afterwards.
func (s *Store) Toggle(item Item) bool {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return false
	}
	var present bool
	s.mutate(func(items []Item) ([]Item, bool) {
		if idx := indexOf(items, item.ID); idx >= 0 {
			return append(items[:idx], items[idx+1:]...), true
		}
		present = true
		return append(items, item), true
	})
	return present
}

func (s *Store) Clear() {
	s.mutate(func(items []Item) ([]Item, bool) {
		return nil, len(items) > 0
	})
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.items, strings.TrimSpace(id)) >= 0
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a snapshot.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.items)
}

// mutate applies fn and notifies subscribers only when fn reports a change.
func (s *Store) mutate(fn func([]Item) ([]Item, bool)) {
	s.mu.Lock()
	items, changed := fn(s.items)
	s.items = items
	if !changed {
		s.mu.Unlock()
		return
	}
	snapshot := clone(s.items)
	subs := make([]func([]Item), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
}

func indexOf(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func clone(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

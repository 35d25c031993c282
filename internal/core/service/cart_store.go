package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// CartListener receives a copy of the cart after every successful mutation.
// Listeners run synchronously, in mutation order. A listener may read the
// store but must not mutate it or subscribe to it.
type CartListener func(cart domain.Cart)

type listenerEntry struct {
	id int
	fn CartListener
}

// CartStore owns one cart's line items. All reads and writes go through its
// methods; find-then-increment happens under a single lock.
type CartStore struct {
	id string
	// now is swapped in tests
	now func() time.Time

	mu        sync.Mutex
	items     []domain.LineItem
	index     map[domain.LineItemKey]int
	version   uint64
	updatedAt time.Time
	// lastActive is the latest open or mutation, for idle expiry
	lastActive time.Time
	// pending holds snapshots not yet delivered, in mutation order
	pending []domain.Cart

	// notifyMu serializes delivery and guards listeners
	notifyMu  sync.Mutex
	listeners []listenerEntry
	nextID    int
}

func NewCartStore(id string) *CartStore {
	return &CartStore{
		id:         id,
		now:        time.Now,
		index:      make(map[domain.LineItemKey]int),
		lastActive: time.Now(),
	}
}

func (s *CartStore) ID() string {
	return s.id
}

// LastActive reports when the cart was last opened or changed.
func (s *CartStore) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *CartStore) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// AddItem adds quantity of variant to the cart, merging into an existing
// line with the same (product, variant) key. Non-positive quantities are
// treated as 1. An add that would push the line past domain.MaxLineQuantity
// fails with ErrInvalidLineItem and leaves the cart unchanged.
func (s *CartStore) AddItem(product domain.ProductMeta, variant domain.Variant, quantity int) (domain.LineItem, error) {
	if product.ID == "" || variant.ID == "" {
		return domain.LineItem{}, fmt.Errorf("%w: product and variant ids are required", domain.ErrInvalidLineItem)
	}
	if !variant.AvailableForSale {
		return domain.LineItem{}, fmt.Errorf("%w: %s", domain.ErrVariantUnavailable, variant.ID)
	}
	if quantity <= 0 {
		quantity = 1
	}

	key := domain.LineItemKey{ProductID: product.ID, VariantID: variant.ID}

	s.mu.Lock()
	existing := 0
	if i, ok := s.index[key]; ok {
		existing = s.items[i].Quantity
	}
	if quantity > domain.MaxLineQuantity-existing {
		s.mu.Unlock()
		return domain.LineItem{}, fmt.Errorf("%w: quantity would exceed %d", domain.ErrInvalidLineItem, domain.MaxLineQuantity)
	}

	var item domain.LineItem
	if i, ok := s.index[key]; ok {
		s.items[i].Quantity += quantity
		item = s.items[i]
	} else {
		item = domain.LineItem{
			Product:         product,
			VariantID:       variant.ID,
			VariantTitle:    variant.Title,
			UnitPrice:       variant.Price,
			Quantity:        quantity,
			SelectedOptions: append([]domain.SelectedOption(nil), variant.SelectedOptions...),
			AddedAt:         s.now(),
		}
		s.index[key] = len(s.items)
		s.items = append(s.items, item)
	}
	item.SelectedOptions = append([]domain.SelectedOption(nil), item.SelectedOptions...)
	s.commitAndNotify()

	return item, nil
}

// RemoveItem deletes the line with the given key. Missing keys are ignored.
func (s *CartStore) RemoveItem(productID, variantID string) {
	s.mu.Lock()
	if !s.removeLocked(domain.LineItemKey{ProductID: productID, VariantID: variantID}) {
		s.mu.Unlock()
		return
	}
	s.commitAndNotify()
}

// UpdateQuantity sets a line's quantity in place; quantity <= 0 removes it
// and quantities above domain.MaxLineQuantity are capped there. It reports
// whether a line with the key existed.
func (s *CartStore) UpdateQuantity(productID, variantID string, quantity int) bool {
	key := domain.LineItemKey{ProductID: productID, VariantID: variantID}

	s.mu.Lock()
	i, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	quantity = min(quantity, domain.MaxLineQuantity)
	if quantity <= 0 {
		s.removeLocked(key)
	} else {
		if s.items[i].Quantity == quantity {
			s.mu.Unlock()
			return true
		}
		s.items[i].Quantity = quantity
	}
	s.commitAndNotify()
	return true
}

func (s *CartStore) Clear() {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.items = nil
	s.index = make(map[domain.LineItemKey]int)
	s.commitAndNotify()
}

// Items returns a copy of the line items in insertion order.
func (s *CartStore) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyItems(s.items)
}

// Totals sums unit price times quantity per currency. Amounts in different
// currencies are never added together.
func (s *CartStore) Totals() map[string]domain.Money {
	s.mu.Lock()
	defer s.mu.Unlock()
	return subtotals(s.items)
}

// ItemCount is the total quantity across all lines.
func (s *CartStore) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return itemCount(s.items)
}

func (s *CartStore) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn and returns a function that removes it.
func (s *CartStore) Subscribe(fn CartListener) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			defer s.notifyMu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *CartStore) removeLocked(key domain.LineItemKey) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].Key()] = j
	}
	return true
}

// commitAndNotify must be called with mu held; it releases mu and returns
// once every pending snapshot, including this one, has been delivered.
func (s *CartStore) commitAndNotify() {
	s.version++
	s.updatedAt = s.now()
	s.lastActive = s.updatedAt
	s.pending = append(s.pending, s.snapshotLocked())
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		cart := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		for _, l := range s.listeners {
			l.fn(cart)
		}
	}
}

func (s *CartStore) snapshotLocked() domain.Cart {
	return domain.Cart{
		ID:        s.id,
		Items:     copyItems(s.items),
		Subtotals: subtotals(s.items),
		ItemCount: itemCount(s.items),
		Version:   s.version,
		UpdatedAt: s.updatedAt,
	}
}

func copyItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	for i, item := range items {
		item.SelectedOptions = append([]domain.SelectedOption(nil), item.SelectedOptions...)
		out[i] = item
	}
	return out
}

func subtotals(items []domain.LineItem) map[string]domain.Money {
	out := make(map[string]domain.Money)
	for _, item := range items {
		line := item.LineTotal()
		if acc, ok := out[line.CurrencyCode]; ok {
			line.Amount = acc.Amount.Add(line.Amount)
		}
		out[line.CurrencyCode] = line
	}
	return out
}

func itemCount(items []domain.LineItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}

package service

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func testVariant(id, amount, currency string) domain.Variant {
	return domain.Variant{
		ID:               id,
		Title:            id,
		Price:            domain.MustParseMoney(amount, currency),
		AvailableForSale: true,
		SelectedOptions:  []domain.SelectedOption{{Name: "Size", Value: id}},
	}
}

func testProduct(id string) domain.ProductMeta {
	return domain.ProductMeta{ID: id, Handle: id, Title: "Product " + id}
}

func assertUniqueKeys(t *testing.T, items []domain.LineItem) {
	t.Helper()
	seen := make(map[domain.LineItemKey]bool, len(items))
	for _, item := range items {
		assert.False(t, seen[item.Key()], "duplicate line %v", item.Key())
		seen[item.Key()] = true
	}
}

func TestAddItem_MergesQuantity(t *testing.T) {
	store := NewCartStore("cart-1")
	v := testVariant("v-m", "10.00", "USD")

	_, err := store.AddItem(testProduct("p-1"), v, 2)
	require.NoError(t, err)
	item, err := store.AddItem(testProduct("p-1"), v, 3)
	require.NoError(t, err)

	assert.Equal(t, 5, item.Quantity)
	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, 5, store.ItemCount())
}

func TestAddItem_NormalizesNonPositiveQuantity(t *testing.T) {
	store := NewCartStore("cart-1")

	item, err := store.AddItem(testProduct("p-1"), testVariant("v-s", "1.00", "USD"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity)

	item, err = store.AddItem(testProduct("p-1"), testVariant("v-s", "1.00", "USD"), -4)
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
}

func TestAddItem_RejectsUnavailableVariant(t *testing.T) {
	store := NewCartStore("cart-1")
	v := testVariant("v-s", "1.00", "USD")
	v.AvailableForSale = false

	_, err := store.AddItem(testProduct("p-1"), v, 1)
	assert.ErrorIs(t, err, domain.ErrVariantUnavailable)
	assert.Empty(t, store.Items())
}

func TestAddItem_RequiresIdentity(t *testing.T) {
	store := NewCartStore("cart-1")

	_, err := store.AddItem(domain.ProductMeta{}, testVariant("v-s", "1.00", "USD"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidLineItem)

	_, err = store.AddItem(testProduct("p-1"), domain.Variant{AvailableForSale: true}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidLineItem)
}

func TestAddItem_SameVariantDifferentProductsAreSeparateLines(t *testing.T) {
	store := NewCartStore("cart-1")
	v := testVariant("v-s", "1.00", "USD")

	_, err := store.AddItem(testProduct("p-1"), v, 1)
	require.NoError(t, err)
	_, err = store.AddItem(testProduct("p-2"), v, 1)
	require.NoError(t, err)

	assert.Len(t, store.Items(), 2)
}

func TestItems_PreserveInsertionOrder(t *testing.T) {
	store := NewCartStore("cart-1")
	for _, id := range []string{"c", "a", "b"} {
		_, err := store.AddItem(testProduct("p-"+id), testVariant("v-"+id, "1.00", "USD"), 1)
		require.NoError(t, err)
	}
	_, err := store.AddItem(testProduct("p-a"), testVariant("v-a", "1.00", "USD"), 1)
	require.NoError(t, err)

	require.True(t, store.UpdateQuantity("p-a", "v-a", 7))

	var order []string
	for _, item := range store.Items() {
		order = append(order, item.VariantID)
	}
	assert.Equal(t, []string{"v-c", "v-a", "v-b"}, order)
}

func TestRemoveItem(t *testing.T) {
	store := NewCartStore("cart-1")
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.AddItem(testProduct("p-1"), testVariant("v-"+id, "1.00", "USD"), 1)
		require.NoError(t, err)
	}

	store.RemoveItem("p-1", "v-b")
	items := store.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "v-a", items[0].VariantID)
	assert.Equal(t, "v-c", items[1].VariantID)

	// index must still point at the shifted line
	require.True(t, store.UpdateQuantity("p-1", "v-c", 4))
	assert.Equal(t, 4, store.Items()[1].Quantity)
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	store := NewCartStore("cart-1")
	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "1.00", "USD"), 1)
	require.NoError(t, err)
	before := store.Snapshot()

	store.RemoveItem("p-1", "v-missing")
	store.RemoveItem("p-missing", "v-a")

	after := store.Snapshot()
	assert.Equal(t, before.Items, after.Items)
	assert.Equal(t, before.Version, after.Version)
}

func TestUpdateQuantity_NonPositiveRemoves(t *testing.T) {
	store := NewCartStore("cart-1")
	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "1.00", "USD"), 3)
	require.NoError(t, err)

	assert.True(t, store.UpdateQuantity("p-1", "v-a", 0))
	assert.Empty(t, store.Items())

	assert.False(t, store.UpdateQuantity("p-1", "v-a", 2))
	assert.Empty(t, store.Items())
}

func TestAddItem_RejectsQuantityOverflow(t *testing.T) {
	store := NewCartStore("cart-1")
	v := testVariant("v-a", "2.00", "USD")
	var notified atomic.Int32
	store.Subscribe(func(domain.Cart) { notified.Add(1) })

	_, err := store.AddItem(testProduct("p-1"), v, domain.MaxLineQuantity)
	require.NoError(t, err)

	_, err = store.AddItem(testProduct("p-1"), v, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidLineItem)
	_, err = store.AddItem(testProduct("p-1"), v, math.MaxInt)
	assert.ErrorIs(t, err, domain.ErrInvalidLineItem)
	_, err = store.AddItem(testProduct("p-2"), v, math.MaxInt)
	assert.ErrorIs(t, err, domain.ErrInvalidLineItem)

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.MaxLineQuantity, items[0].Quantity)
	assert.Equal(t, domain.MaxLineQuantity, store.ItemCount())
	assert.Equal(t, "2000000.00", store.Totals()["USD"].AmountString())
	assert.Equal(t, int32(1), notified.Load())
}

func TestUpdateQuantity_CapsAtMaxLineQuantity(t *testing.T) {
	store := NewCartStore("cart-1")
	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "1.00", "USD"), 1)
	require.NoError(t, err)

	assert.True(t, store.UpdateQuantity("p-1", "v-a", math.MaxInt))
	assert.Equal(t, domain.MaxLineQuantity, store.Items()[0].Quantity)
	assert.Positive(t, store.ItemCount())
}

func TestClear(t *testing.T) {
	store := NewCartStore("cart-1")
	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "1.00", "USD"), 3)
	require.NoError(t, err)

	store.Clear()
	assert.Empty(t, store.Items())
	assert.Empty(t, store.Totals())
	assert.Equal(t, 0, store.ItemCount())
}

func TestTotals_ExactDecimal(t *testing.T) {
	store := NewCartStore("cart-1")
	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "10.00", "USD"), 2)
	require.NoError(t, err)
	_, err = store.AddItem(testProduct("p-2"), testVariant("v-b", "5.50", "USD"), 1)
	require.NoError(t, err)

	totals := store.Totals()
	require.Len(t, totals, 1)
	assert.Equal(t, "25.50", totals["USD"].AmountString())
	assert.Equal(t, "USD", totals["USD"].CurrencyCode)
}

func TestTotals_NoFloatDrift(t *testing.T) {
	store := NewCartStore("cart-1")
	for i := 0; i < 10; i++ {
		_, err := store.AddItem(testProduct("p-1"), testVariant(fmt.Sprintf("v-%d", i), "0.10", "USD"), 1)
		require.NoError(t, err)
	}
	assert.Equal(t, "1.00", store.Totals()["USD"].AmountString())
}

func TestTotals_GroupedByCurrency(t *testing.T) {
	store := NewCartStore("cart-1")
	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "10.00", "USD"), 1)
	require.NoError(t, err)
	_, err = store.AddItem(testProduct("p-2"), testVariant("v-b", "7.25", "EUR"), 2)
	require.NoError(t, err)
	_, err = store.AddItem(testProduct("p-3"), testVariant("v-c", "0.99", "USD"), 1)
	require.NoError(t, err)

	totals := store.Totals()
	assert.Equal(t, "10.99", totals["USD"].AmountString())
	assert.Equal(t, "14.50", totals["EUR"].AmountString())
}

func TestSubscribe_NotifiedAfterEachMutation(t *testing.T) {
	store := NewCartStore("cart-1")
	var got []domain.Cart
	unsubscribe := store.Subscribe(func(c domain.Cart) {
		// reading the store from a listener must not block
		assert.Equal(t, c.ItemCount, store.ItemCount())
		got = append(got, c)
	})

	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "2.00", "USD"), 1)
	require.NoError(t, err)
	store.UpdateQuantity("p-1", "v-a", 3)
	store.RemoveItem("p-1", "v-missing") // no-op, no notification
	store.Clear()

	require.Len(t, got, 3)
	assert.Equal(t, "2.00", got[0].Subtotals["USD"].AmountString())
	assert.Equal(t, "6.00", got[1].Subtotals["USD"].AmountString())
	assert.Empty(t, got[2].Items)
	assert.Less(t, got[0].Version, got[1].Version)

	unsubscribe()
	unsubscribe()
	_, err = store.AddItem(testProduct("p-1"), testVariant("v-a", "2.00", "USD"), 1)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSubscribe_SnapshotIsACopy(t *testing.T) {
	store := NewCartStore("cart-1")
	var last domain.Cart
	store.Subscribe(func(c domain.Cart) { last = c })

	_, err := store.AddItem(testProduct("p-1"), testVariant("v-a", "2.00", "USD"), 1)
	require.NoError(t, err)
	last.Items[0].Quantity = 99
	last.Items[0].SelectedOptions[0].Value = "tampered"

	items := store.Items()
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, "v-a", items[0].SelectedOptions[0].Value)
}

func TestCartStore_Concurrent(t *testing.T) {
	store := NewCartStore("cart-1")
	variants := []domain.Variant{
		testVariant("v-a", "1.00", "USD"),
		testVariant("v-b", "2.00", "USD"),
	}

	var notified atomic.Int32
	var lastVersion atomic.Uint64
	store.Subscribe(func(c domain.Cart) {
		notified.Add(1)
		prev := lastVersion.Swap(c.Version)
		assert.Less(t, prev, c.Version, "notifications out of order")
	})

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AddItem(testProduct("p-1"), variants[i%2], 1)
			assert.NoError(t, err)
			_ = store.Items()
		}(i)
	}
	wg.Wait()

	items := store.Items()
	assertUniqueKeys(t, items)
	assert.Equal(t, workers, store.ItemCount())
	assert.Equal(t, int32(workers), notified.Load())
	assert.Equal(t, "75.00", store.Totals()["USD"].AmountString())
}

func TestCartStore_RandomOperationsKeepKeysUnique(t *testing.T) {
	store := NewCartStore("cart-1")
	ids := []string{"a", "b", "c", "d"}

	for i := 0; i < 200; i++ {
		id := ids[(i*7)%len(ids)]
		switch i % 4 {
		case 0, 1:
			_, err := store.AddItem(testProduct("p-1"), testVariant("v-"+id, "1.00", "USD"), i%3)
			require.NoError(t, err)
		case 2:
			store.UpdateQuantity("p-1", "v-"+id, i%5-1)
		case 3:
			store.RemoveItem("p-1", "v-"+id)
		}
		assertUniqueKeys(t, store.Items())
	}
}

func TestCartSessions_Open(t *testing.T) {
	var created []string
	sessions := NewCartSessions(func(c *CartStore) { created = append(created, c.ID()) })

	cart, isNew := sessions.Open("")
	require.True(t, isNew)
	require.NotEmpty(t, cart.ID())

	again, isNew := sessions.Open(cart.ID())
	assert.False(t, isNew)
	assert.Same(t, cart, again)

	other, isNew := sessions.Open("forged-id")
	assert.True(t, isNew)
	assert.NotEqual(t, "forged-id", other.ID())

	assert.Equal(t, []string{cart.ID(), other.ID()}, created)
	assert.Equal(t, 2, sessions.Len())

	sessions.Drop(cart.ID())
	_, ok := sessions.Lookup(cart.ID())
	assert.False(t, ok)
}

func TestCartSessions_SweepDropsIdleCarts(t *testing.T) {
	sessions := NewCartSessions(nil)
	for i := 0; i < 1000; i++ {
		sessions.Open("")
	}
	kept, _ := sessions.Open("")
	require.Equal(t, 1001, sessions.Len())

	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, err := kept.AddItem(testProduct("p-1"), testVariant("v-a", "1.00", "USD"), 1)
	require.NoError(t, err)

	assert.Equal(t, 1000, sessions.Sweep(cutoff))
	assert.Equal(t, 1, sessions.Len())
	got, ok := sessions.Lookup(kept.ID())
	require.True(t, ok)
	assert.Same(t, kept, got)

	// opening counts as activity
	time.Sleep(5 * time.Millisecond)
	cutoff = time.Now()
	time.Sleep(5 * time.Millisecond)
	sessions.Open(kept.ID())
	assert.Zero(t, sessions.Sweep(cutoff))
	assert.Equal(t, 1, sessions.Sweep(time.Now().Add(time.Second)))
	assert.Zero(t, sessions.Len())
}

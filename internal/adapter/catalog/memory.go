package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MemorySource serves a fixed catalog, in insertion order. It backs local
// development and tests when no Shopify store is configured.
type MemorySource struct {
	mu       sync.RWMutex
	order    []string
	products map[string]domain.CatalogSnapshot
}

func NewMemorySource(products ...domain.CatalogSnapshot) (*MemorySource, error) {
	m := &MemorySource{products: make(map[string]domain.CatalogSnapshot, len(products))}
	for _, p := range products {
		if err := m.Put(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LoadMemorySource reads a JSON array of snapshots from path.
func LoadMemorySource(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	return ParseMemorySource(data)
}

// ParseMemorySource builds a MemorySource from a JSON array of snapshots.
func ParseMemorySource(data []byte) (*MemorySource, error) {
	var products []domain.CatalogSnapshot
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	return NewMemorySource(products...)
}

// Put adds or replaces a product after validating it.
func (m *MemorySource) Put(p domain.CatalogSnapshot) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Handle == "" {
		return fmt.Errorf("%w: product %s has no handle", domain.ErrInvalidSnapshot, p.ProductID)
	}
	if p.PriceRange.MinVariantPrice.IsZero() {
		p.PriceRange = priceRange(p.Variants)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.Handle]; !ok {
		m.order = append(m.order, p.Handle)
	}
	m.products[p.Handle] = p
	return nil
}

func (m *MemorySource) FetchProduct(_ context.Context, handle string) (*domain.CatalogSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, handle)
	}
	return &p, nil
}

// FetchProducts pages by position; the cursor is the index of the next product.
func (m *MemorySource) FetchProducts(_ context.Context, page domain.PageParams) (*domain.ProductPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if page.After != "" {
		n, err := strconv.Atoi(page.After)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCursor, page.After)
		}
		start = n
	}
	if start > len(m.order) {
		start = len(m.order)
	}
	end := start + page.First
	if page.First <= 0 || end > len(m.order) {
		end = len(m.order)
	}

	out := &domain.ProductPage{Products: make([]domain.CatalogSnapshot, 0, end-start)}
	for _, handle := range m.order[start:end] {
		p := m.products[handle]
		// listings carry only the first variant
		p.Variants = p.Variants[:1]
		out.Products = append(out.Products, p)
	}
	if end < len(m.order) {
		out.HasNextPage = true
		out.EndCursor = strconv.Itoa(end)
	}
	return out, nil
}

func priceRange(variants []domain.Variant) domain.PriceRange {
	var pr domain.PriceRange
	for i, v := range variants {
		if i == 0 || v.Price.Amount.LessThan(pr.MinVariantPrice.Amount) {
			pr.MinVariantPrice = v.Price
		}
		if i == 0 || v.Price.Amount.GreaterThan(pr.MaxVariantPrice.Amount) {
			pr.MaxVariantPrice = v.Price
		}
	}
	return pr
}

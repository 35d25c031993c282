package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/resolver"
	"github.com/rl1809/storefront/internal/port"
)

const (
	maxPageSize = 100
	// fetchTimeout bounds a shared fetch, which no single caller owns
	fetchTimeout = 15 * time.Second
)

type CatalogService struct {
	source port.CatalogSource
	// cache may be nil
	cache port.SnapshotCache
	sfg   singleflight.Group // collapses concurrent fetches of one handle
}

func NewCatalogService(source port.CatalogSource, cache port.SnapshotCache) *CatalogService {
	return &CatalogService{
		source: source,
		cache:  cache,
	}
}

// Product returns the validated snapshot for handle, from cache when possible.
func (s *CatalogService) Product(ctx context.Context, handle string) (*domain.CatalogSnapshot, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, domain.ErrNotFound
	}

	// The shared fetch outlives any one caller; each caller stops waiting
	// when its own ctx ends.
	ch := s.sfg.DoChan(handle, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		if s.cache != nil {
			snap, err := s.cache.GetSnapshot(ctx, handle)
			if err == nil {
				return snap, nil
			}
			if !errors.Is(err, port.ErrCacheMiss) {
				log.Printf("catalog: cache get %s: %v", handle, err)
			}
		}

		snap, err := s.source.FetchProduct(ctx, handle)
		if err != nil {
			return nil, err
		}
		if err := snap.Validate(); err != nil {
			return nil, err
		}

		if s.cache != nil {
			cached := *snap
			go func() {
				setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := s.cache.SetSnapshot(setCtx, handle, &cached); err != nil {
					log.Printf("catalog: cache set %s: %v", handle, err)
				}
			}()
		}
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.CatalogSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListProducts returns one listing page. Page size defaults to 12.
func (s *CatalogService) ListProducts(ctx context.Context, page domain.PageParams) (*domain.ProductPage, error) {
	if page.First <= 0 {
		page.First = domain.DefaultPageSize
	}
	if page.First > maxPageSize {
		page.First = maxPageSize
	}
	result, err := s.source.FetchProducts(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return result, nil
}

// Invalidate drops a cached snapshot, e.g. after a catalog webhook.
func (s *CatalogService) Invalidate(ctx context.Context, handle string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteSnapshot(ctx, handle)
}

// ResolveForCart loads the product and resolves sel against it. An empty
// selection means the first variant, as on a listing card.
func (s *CatalogService) ResolveForCart(ctx context.Context, handle string, sel domain.Selection) (*domain.CatalogSnapshot, domain.Variant, error) {
	snap, err := s.Product(ctx, handle)
	if err != nil {
		return nil, domain.Variant{}, err
	}
	if len(sel) == 0 {
		sel = resolver.InitialSelection(snap)
	}
	v, err := resolver.Resolve(snap, sel)
	if err != nil {
		return snap, domain.Variant{}, err
	}
	return snap, v, nil
}

package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CatalogSource interface {
	// FetchProduct returns domain.ErrNotFound when no product has the handle
	FetchProduct(ctx context.Context, handle string) (*domain.CatalogSnapshot, error)

	// FetchProducts returns one page of partial snapshots for listing
	FetchProducts(ctx context.Context, page domain.PageParams) (*domain.ProductPage, error)
}

package port

import (
	"context"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

var ErrFavoriteExists = errors.New("favorite already exists")

type FavoriteRepository interface {
	// GetFavorite returns nil, nil when the user has not favorited the product
	GetFavorite(ctx context.Context, userID, productID string) (*domain.Favorite, error)

	// InsertFavorite returns ErrFavoriteExists if the (user, product) row is already present
	InsertFavorite(ctx context.Context, favorite domain.Favorite) error

	// DeleteFavorite is a no-op when the row does not exist
	DeleteFavorite(ctx context.Context, userID, productID string) error

	// ListFavorites returns the user's favorites, newest first
	ListFavorites(ctx context.Context, userID string) ([]domain.Favorite, error)
}

type SessionProvider interface {
	// CurrentSession returns nil, nil when no one is signed in
	CurrentSession(ctx context.Context) (*domain.Session, error)
}

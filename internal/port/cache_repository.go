package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type SnapshotCache interface {
	// GetSnapshot returns ErrCacheMiss when the handle is not cached
	GetSnapshot(ctx context.Context, handle string) (*domain.CatalogSnapshot, error)

	SetSnapshot(ctx context.Context, handle string, snapshot *domain.CatalogSnapshot) error

	DeleteSnapshot(ctx context.Context, handle string) error
}

type LockRepository interface {
	// AcquireLock sets key if absent and returns false if another owner holds it
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes key only if owner still holds it
	ReleaseLock(ctx context.Context, key, owner string) error
}

type SessionRepository interface {
	// CreateSession mints a bearer token for userID
	CreateSession(ctx context.Context, userID string) (*domain.Session, error)

	// GetSession returns nil, nil for unknown or expired tokens
	GetSession(ctx context.Context, token string) (*domain.Session, error)

	DeleteSession(ctx context.Context, token string) error
}

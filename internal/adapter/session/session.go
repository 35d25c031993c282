// Package session carries the authenticated session on the request context.
package session

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type contextKey struct{}

func WithSession(ctx context.Context, s *domain.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(contextKey{}).(*domain.Session)
	return s
}

// ContextProvider answers CurrentSession from the context populated by the
// HTTP auth middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentSession(ctx context.Context) (*domain.Session, error) {
	return FromContext(ctx), nil
}

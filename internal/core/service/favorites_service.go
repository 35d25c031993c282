package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const toggleLockTTL = 10 * time.Second

type favoriteKey struct {
	userID    string
	productID string
}

func (k favoriteKey) lockKey() string {
	return fmt.Sprintf("favorite-toggle:%s:%s", k.userID, k.productID)
}

// FavoritesService hands out one FavoriteTracker per (user, product), so
// every caller toggling the same pair shares the same busy guard.
type FavoritesService struct {
	sessions port.SessionProvider
	repo     port.FavoriteRepository
	// locks may be nil; it extends the busy guard across processes
	locks port.LockRepository

	mu       sync.Mutex
	trackers map[favoriteKey]*FavoriteTracker
}

func NewFavoritesService(sessions port.SessionProvider, repo port.FavoriteRepository, locks port.LockRepository) *FavoritesService {
	return &FavoritesService{
		sessions: sessions,
		repo:     repo,
		locks:    locks,
		trackers: make(map[favoriteKey]*FavoriteTracker),
	}
}

// Track returns the tracker for product under the current session. Without
// a session the tracker is unbound: it stays Unknown and every check or
// toggle fails with ErrUnauthenticated.
func (s *FavoritesService) Track(ctx context.Context, product domain.FavoriteProduct) (*FavoriteTracker, error) {
	sess, err := s.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return s.newTracker(favoriteKey{productID: product.ID}, product), nil
	}

	key := favoriteKey{userID: sess.UserID, productID: product.ID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trackers[key]; ok {
		t.refreshProduct(product)
		return t, nil
	}
	t := s.newTracker(key, product)
	s.trackers[key] = t
	return t, nil
}

// Open tracks product and runs the initial membership check when the
// tracker has not settled yet.
func (s *FavoritesService) Open(ctx context.Context, product domain.FavoriteProduct) (*FavoriteTracker, error) {
	t, err := s.Track(ctx, product)
	if err != nil {
		return nil, err
	}
	switch t.State() {
	case domain.FavoriteUnknown, domain.FavoriteError:
		if _, err := t.Check(ctx); err != nil && !errors.Is(err, domain.ErrUnauthenticated) && !errors.Is(err, domain.ErrBusy) {
			return t, err
		}
	}
	return t, nil
}

// List returns the signed-in user's favorites.
func (s *FavoritesService) List(ctx context.Context) ([]domain.Favorite, error) {
	sess, err := s.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrUnauthenticated
	}
	favs, err := s.repo.ListFavorites(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: list favorites: %w", domain.ErrBackendFailure, err)
	}
	return favs, nil
}

func (s *FavoritesService) newTracker(key favoriteKey, product domain.FavoriteProduct) *FavoriteTracker {
	return &FavoriteTracker{
		svc:      s,
		key:      key,
		product:  product,
		state:    domain.FavoriteUnknown,
		lastUsed: time.Now(),
	}
}

// Sweep unregisters trackers that are idle since cutoff and have no request
// in flight, and returns how many it removed. A caller still holding one
// keeps a working tracker; the next Track starts a fresh one.
func (s *FavoritesService) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, t := range s.trackers {
		t.mu.Lock()
		idle := !t.inFlight && t.lastUsed.Before(cutoff)
		t.mu.Unlock()
		if idle {
			delete(s.trackers, key)
			n++
		}
	}
	return n
}

func (s *FavoritesService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trackers)
}

func (s *FavoritesService) forget(t *FavoriteTracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackers[t.key] == t {
		delete(s.trackers, t.key)
	}
}

func (s *FavoritesService) currentSession(ctx context.Context) (*domain.Session, error) {
	sess, err := s.sessions.CurrentSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: session lookup: %w", domain.ErrBackendFailure, err)
	}
	return sess, nil
}

// FavoriteTracker caches one product's membership for one user. The cache
// is only as fresh as the last Check or Toggle.
type FavoriteTracker struct {
	svc *FavoritesService
	key favoriteKey

	mu       sync.Mutex
	product  domain.FavoriteProduct
	state    domain.FavoriteState
	lastErr  error
	inFlight bool
	closed   bool
	lastUsed time.Time
}

func (t *FavoriteTracker) State() domain.FavoriteState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that put the tracker into FavoriteError, or the
// last failed toggle.
func (t *FavoriteTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *FavoriteTracker) ProductID() string {
	return t.key.productID
}

// Check queries the backend for the membership row:
// Unknown|Error|settled -> Checking -> Favorited|NotFavorited|Error.
func (t *FavoriteTracker) Check(ctx context.Context) (domain.FavoriteState, error) {
	if err := t.authorize(ctx); err != nil {
		return t.State(), err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return t.state, domain.ErrTrackerClosed
	}
	if t.inFlight {
		state := t.state
		t.mu.Unlock()
		return state, domain.ErrBusy
	}
	t.inFlight = true
	t.state = domain.FavoriteChecking
	t.mu.Unlock()

	row, err := t.svc.repo.GetFavorite(ctx, t.key.userID, t.key.productID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight = false
	t.lastUsed = time.Now()
	if t.closed {
		return t.state, domain.ErrTrackerClosed
	}
	if err != nil {
		t.state = domain.FavoriteError
		t.lastErr = fmt.Errorf("%w: check favorite: %w", domain.ErrBackendFailure, err)
		return t.state, t.lastErr
	}
	t.lastErr = nil
	if row != nil {
		t.state = domain.FavoriteFavorited
	} else {
		t.state = domain.FavoriteNotFavorited
	}
	return t.state, nil
}

// Toggle flips membership. The backend write happens first; the local state
// changes only after it succeeds. A second call while one is in flight
// fails with ErrBusy.
func (t *FavoriteTracker) Toggle(ctx context.Context) (domain.FavoriteState, error) {
	if err := t.authorize(ctx); err != nil {
		return t.State(), err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return t.state, domain.ErrTrackerClosed
	}
	prior := t.state
	if t.inFlight || prior == domain.FavoriteChecking {
		t.mu.Unlock()
		return prior, domain.ErrBusy
	}
	if !prior.Settled() {
		t.mu.Unlock()
		return prior, fmt.Errorf("%w: state is %s", domain.ErrUnsettled, prior)
	}
	t.inFlight = true
	product := t.product
	t.mu.Unlock()

	err := t.write(ctx, prior, product)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight = false
	t.lastUsed = time.Now()
	if t.closed {
		return t.state, domain.ErrTrackerClosed
	}
	if err != nil {
		if !errors.Is(err, domain.ErrBusy) {
			t.lastErr = err
		}
		return t.state, err
	}
	t.lastErr = nil
	if prior == domain.FavoriteFavorited {
		t.state = domain.FavoriteNotFavorited
	} else {
		t.state = domain.FavoriteFavorited
	}
	return t.state, nil
}

// Close detaches the tracker. Responses still in flight are discarded.
func (t *FavoriteTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.svc.forget(t)
}

func (t *FavoriteTracker) write(ctx context.Context, prior domain.FavoriteState, product domain.FavoriteProduct) error {
	if locks := t.svc.locks; locks != nil {
		owner := uuid.NewString()
		ok, err := locks.AcquireLock(ctx, t.key.lockKey(), owner, toggleLockTTL)
		if err != nil {
			return fmt.Errorf("%w: acquire toggle lock: %w", domain.ErrBackendFailure, err)
		}
		if !ok {
			return domain.ErrBusy
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := locks.ReleaseLock(releaseCtx, t.key.lockKey(), owner); err != nil {
				log.Printf("favorites: release lock %s: %v", t.key.lockKey(), err)
			}
		}()
	}

	if prior == domain.FavoriteFavorited {
		if err := t.svc.repo.DeleteFavorite(ctx, t.key.userID, t.key.productID); err != nil {
			return fmt.Errorf("%w: delete favorite: %w", domain.ErrBackendFailure, err)
		}
		return nil
	}

	err := t.svc.repo.InsertFavorite(ctx, domain.Favorite{
		ID:        uuid.NewString(),
		UserID:    t.key.userID,
		Product:   product,
		CreatedAt: time.Now().UTC(),
	})
	// a row written elsewhere already gives the state we want
	if errors.Is(err, port.ErrFavoriteExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: insert favorite: %w", domain.ErrBackendFailure, err)
	}
	return nil
}

// authorize requires a session for the user this tracker belongs to.
func (t *FavoriteTracker) authorize(ctx context.Context) error {
	if t.key.userID == "" {
		return domain.ErrUnauthenticated
	}
	sess, err := t.svc.currentSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil || sess.UserID != t.key.userID {
		return domain.ErrUnauthenticated
	}
	return nil
}

func (t *FavoriteTracker) refreshProduct(p domain.FavoriteProduct) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastUsed = time.Now()
	if p.Handle != "" || p.Title != "" {
		t.product = p
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/adapter/catalog"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const (
	userID        = "stress-user"
	productID     = "gid://shopify/Product/9001"
	totalAdds     = 200
	totalToggles  = 50
	backendWriter = 20 * time.Millisecond
)

// slowFavorites is an in-memory favorites table with backend-like latency,
// so concurrent toggles overlap.
type slowFavorites struct {
	mu     sync.Mutex
	rows   map[string]domain.Favorite
	writes atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// track records how many writes overlap; it returns the matching release.
func (s *slowFavorites) track() func() {
	s.writes.Add(1)
	n := s.inFlight.Add(1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { s.inFlight.Add(-1) }
}

func (s *slowFavorites) GetFavorite(ctx context.Context, userID, productID string) (*domain.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.rows[userID+"|"+productID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *slowFavorites) InsertFavorite(ctx context.Context, f domain.Favorite) error {
	defer s.track()()
	time.Sleep(backendWriter)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := f.UserID + "|" + f.Product.ID
	if _, ok := s.rows[key]; ok {
		return port.ErrFavoriteExists
	}
	s.rows[key] = f
	return nil
}

func (s *slowFavorites) DeleteFavorite(ctx context.Context, userID, productID string) error {
	defer s.track()()
	time.Sleep(backendWriter)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, userID+"|"+productID)
	return nil
}

func (s *slowFavorites) ListFavorites(ctx context.Context, userID string) ([]domain.Favorite, error) {
	return nil, nil
}

type fixedSession struct{}

func (fixedSession) CurrentSession(ctx context.Context) (*domain.Session, error) {
	return &domain.Session{Token: "stress", UserID: userID}, nil
}

func main() {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	redisAdapter := storage.NewRedisAdapter(rdb, time.Minute)

	// Clear previous test data
	rdb.Del(ctx, "lock:favorite-toggle:"+userID+":"+productID)
	if err := redisAdapter.DeleteSnapshot(ctx, "stress-tee"); err != nil {
		log.Printf("failed to clear snapshot: %v", err)
	}

	cartOK := runCart(ctx, redisAdapter)
	favOK := runFavorites(ctx, redisAdapter)

	if !cartOK || !favOK {
		os.Exit(1)
	}
}

// runCart adds the same variant from many goroutines and checks that no
// quantity is lost and the subtotal is exact.
func runCart(ctx context.Context, cache port.SnapshotCache) bool {
	source, err := catalog.NewMemorySource(domain.CatalogSnapshot{
		ProductID: productID,
		Handle:    "stress-tee",
		Title:     "Stress Tee",
		Options:   []domain.OptionDefinition{{Name: "Size", Values: []string{"M"}}},
		Variants: []domain.Variant{{
			ID:               "gid://shopify/ProductVariant/9101",
			Title:            "M",
			Price:            domain.MustParseMoney("19.99", "USD"),
			AvailableForSale: true,
			SelectedOptions:  []domain.SelectedOption{{Name: "Size", Value: "M"}},
		}},
	})
	if err != nil {
		log.Fatalf("failed to build catalog: %v", err)
	}
	catalogService := service.NewCatalogService(source, cache)
	cart := service.NewCartStore("stress-cart")

	var notifications atomic.Int32
	cart.Subscribe(func(domain.Cart) { notifications.Add(1) })

	var failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalAdds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, v, err := catalogService.ResolveForCart(ctx, "stress-tee", domain.Selection{"Size": "M"})
			if err != nil {
				failCount.Add(1)
				return
			}
			if _, err := cart.AddItem(snap.Meta(), v, 1); err != nil {
				failCount.Add(1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	items := cart.Items()
	totals := cart.Totals()
	expected := domain.MustParseMoney("19.99", "USD").Mul(totalAdds)

	fmt.Println("========== CART STRESS RESULTS ==========")
	fmt.Printf("Concurrent Adds:  %d\n", totalAdds)
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Line Items:       %d\n", len(items))
	fmt.Printf("Item Count:       %d\n", cart.ItemCount())
	fmt.Printf("Subtotal:         %s\n", totals["USD"])
	fmt.Printf("Notifications:    %d\n", notifications.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := failCount.Load() == 0 &&
		len(items) == 1 &&
		cart.ItemCount() == totalAdds &&
		totals["USD"].Amount.Equal(expected.Amount) &&
		notifications.Load() == totalAdds
	if ok {
		fmt.Printf("PASS: one line with quantity %d, subtotal %s\n", totalAdds, expected)
	} else {
		fmt.Printf("FAIL: expected one line with quantity %d and subtotal %s\n", totalAdds, expected)
	}
	return ok
}

// runFavorites toggles one product from two service instances that share
// only the Redis lock, as two server processes would.
func runFavorites(ctx context.Context, locks port.LockRepository) bool {
	repo := &slowFavorites{rows: make(map[string]domain.Favorite)}
	nodes := []*service.FavoritesService{
		service.NewFavoritesService(fixedSession{}, repo, locks),
		service.NewFavoritesService(fixedSession{}, repo, locks),
	}
	product := domain.FavoriteProduct{
		ID:     productID,
		Handle: "stress-tee",
		Title:  "Stress Tee",
		Price:  domain.MustParseMoney("19.99", "USD"),
	}

	trackers := make([]*service.FavoriteTracker, len(nodes))
	for i, node := range nodes {
		t, err := node.Open(ctx, product)
		if err != nil {
			log.Fatalf("failed to open tracker: %v", err)
		}
		trackers[i] = t
	}

	var successCount, busyCount, failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalToggles; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := trackers[n%len(trackers)].Toggle(ctx)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrUnsettled):
				busyCount.Add(1)
			default:
				log.Printf("toggle failed: %v", err)
				failCount.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	row, _ := repo.GetFavorite(ctx, userID, productID)
	success := successCount.Load()

	// a fresh check on every node must agree with the table
	agree := true
	for _, t := range trackers {
		state, err := t.Check(ctx)
		if err != nil || (state == domain.FavoriteFavorited) != (row != nil) {
			agree = false
		}
	}

	fmt.Println("======== FAVORITES STRESS RESULTS ========")
	fmt.Printf("Concurrent Toggles: %d\n", totalToggles)
	fmt.Printf("Applied:            %d\n", success)
	fmt.Printf("Rejected (busy):    %d\n", busyCount.Load())
	fmt.Printf("Failed:             %d\n", failCount.Load())
	fmt.Printf("Backend Writes:     %d\n", repo.writes.Load())
	fmt.Printf("Max Overlap:        %d\n", repo.maxInFlight.Load())
	fmt.Printf("Favorited:          %v\n", row != nil)
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("==========================================")

	ok := failCount.Load() == 0 &&
		success >= 1 &&
		success+busyCount.Load() == totalToggles &&
		repo.writes.Load() == success &&
		repo.maxInFlight.Load() == 1 &&
		agree
	if ok {
		fmt.Println("PASS: toggles never overlapped and every node agrees with the table")
	} else {
		fmt.Println("FAIL: overlapping writes or nodes disagree with the table")
	}
	return ok
}

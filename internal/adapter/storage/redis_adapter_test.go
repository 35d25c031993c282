package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// setupTestRedis creates a miniredis server and returns a RedisAdapter on it
func setupTestRedis(t *testing.T) (*RedisAdapter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisAdapter(client, 15*time.Minute), mr
}

func sampleSnapshot() *domain.CatalogSnapshot {
	return &domain.CatalogSnapshot{
		ProductID: "gid://shopify/Product/1",
		Handle:    "tee",
		Title:     "Tee",
		Options:   []domain.OptionDefinition{{Name: "Size", Values: []string{"S", "M"}}},
		Variants: []domain.Variant{
			{
				ID:               "gid://shopify/ProductVariant/11",
				Title:            "S",
				Price:            domain.MustParseMoney("10.50", "USD"),
				AvailableForSale: true,
				SelectedOptions:  []domain.SelectedOption{{Name: "Size", Value: "S"}},
			},
		},
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, adapter.SetSnapshot(ctx, "tee", sampleSnapshot()))
	assert.True(t, mr.Exists(snapshotKey("tee")))

	got, err := adapter.GetSnapshot(ctx, "tee")
	require.NoError(t, err)
	assert.Equal(t, "Tee", got.Title)
	require.Len(t, got.Variants, 1)
	assert.Equal(t, "10.50", got.Variants[0].Price.AmountString())
	assert.Equal(t, "USD", got.Variants[0].Price.CurrencyCode)
}

func TestSnapshot_CacheMiss(t *testing.T) {
	adapter, _ := setupTestRedis(t)

	got, err := adapter.GetSnapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, port.ErrCacheMiss)
	assert.Nil(t, got)
}

func TestSnapshot_InvalidJSON(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(snapshotKey("tee"), `{"productId":`))

	_, err := adapter.GetSnapshot(context.Background(), "tee")
	require.ErrorContains(t, err, "unmarshal snapshot failed")
}

func TestSnapshot_TTLHasJitter(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	require.NoError(t, adapter.SetSnapshot(context.Background(), "tee", sampleSnapshot()))

	ttl := mr.TTL(snapshotKey("tee"))
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl < 20*time.Minute, "TTL should be below base + max jitter")
}

func TestSnapshot_Delete(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, adapter.SetSnapshot(ctx, "tee", sampleSnapshot()))

	require.NoError(t, adapter.DeleteSnapshot(ctx, "tee"))
	assert.False(t, mr.Exists(snapshotKey("tee")))

	// deleting a missing key is not an error
	assert.NoError(t, adapter.DeleteSnapshot(ctx, "tee"))
}

func TestLock_AcquireAndRelease(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.AcquireLock(ctx, "k", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.AcquireLock(ctx, "k", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// only the owner can release
	require.NoError(t, adapter.ReleaseLock(ctx, "k", "owner-b"))
	assert.True(t, mr.Exists(lockKeyPrefix+"k"))

	require.NoError(t, adapter.ReleaseLock(ctx, "k", "owner-a"))
	assert.False(t, mr.Exists(lockKeyPrefix+"k"))

	ok, err = adapter.AcquireLock(ctx, "k", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Expires(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := adapter.AcquireLock(ctx, "k", "owner-a", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	ok, err = adapter.AcquireLock(ctx, "k", "owner-b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_Concurrent(t *testing.T) {
	adapter, _ := setupTestRedis(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.AcquireLock(ctx, "concurrent", "owner", time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
}

func TestSession_Lifecycle(t *testing.T) {
	adapter, mr := setupTestRedis(t)
	ctx := context.Background()

	sess, err := adapter.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.True(t, mr.TTL(sessionKeyPrefix+sess.Token) > 0)

	got, err := adapter.GetSession(ctx, sess.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)

	require.NoError(t, adapter.DeleteSession(ctx, sess.Token))
	got, err = adapter.GetSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSession_Unknown(t *testing.T) {
	adapter, _ := setupTestRedis(t)
	ctx := context.Background()

	got, err := adapter.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = adapter.GetSession(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = adapter.CreateSession(ctx, "")
	assert.Error(t, err)
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	snapshotKeyPrefix = "catalog:snapshot:"
	lockKeyPrefix     = "lock:"
	sessionKeyPrefix  = "session:"

	defaultSnapshotTTL = 15 * time.Minute
	maxSnapshotJitter  = 5
	sessionTTL         = 7 * 24 * time.Hour
)

// releaseLockScript deletes the lock only when the caller still owns it.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local owner = ARGV[1]

if redis.call('GET', key) == owner then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client      *redis.Client
	snapshotTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, snapshotTTL time.Duration) *RedisAdapter {
	if snapshotTTL <= 0 {
		snapshotTTL = defaultSnapshotTTL
	}
	return &RedisAdapter{client: client, snapshotTTL: snapshotTTL}
}

func (r *RedisAdapter) GetSnapshot(ctx context.Context, handle string) (*domain.CatalogSnapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap domain.CatalogSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return &snap, nil
}

// SetSnapshot stores the snapshot with a jittered TTL so entries written
// together do not all expire together.
func (r *RedisAdapter) SetSnapshot(ctx context.Context, handle string, snap *domain.CatalogSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(maxSnapshotJitter)) * time.Minute
	if err := r.client.Set(ctx, snapshotKey(handle), data, r.snapshotTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisAdapter) DeleteSnapshot(ctx context.Context, handle string) error {
	if err := r.client.Del(ctx, snapshotKey(handle)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisAdapter) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *RedisAdapter) ReleaseLock(ctx context.Context, key, owner string) error {
	return releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + key}, owner).Err()
}

func (r *RedisAdapter) CreateSession(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	sess := &domain.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session failed: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+sess.Token, data, sessionTTL).Err(); err != nil {
		return nil, fmt.Errorf("redis set failed: %w", err)
	}
	return sess, nil
}

func (r *RedisAdapter) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, nil
	}
	data, err := r.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &sess, nil
}

func (r *RedisAdapter) DeleteSession(ctx context.Context, token string) error {
	return r.client.Del(ctx, sessionKeyPrefix+token).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func snapshotKey(handle string) string {
	return snapshotKeyPrefix + handle
}

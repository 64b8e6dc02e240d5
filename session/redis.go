package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces session keys so the store can share a Redis
// database with other consumers.
const redisKeyPrefix = "modofit:session:"

// RedisStore persists sessions in Redis, delegating expiry to Redis TTLs.
// Cleanup is therefore a no-op here.
type RedisStore struct {
	client *redis.Client
}

// redisRecord is the stored shape of a session. ExpiresAt is kept in the
// value as well as in the key TTL so Expired() works identically across
// backends.
type redisRecord struct {
	Data      Data      `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore connects to Redis at the given address.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis session store: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Get retrieves a session by ID.
func (rs *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := rs.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var rec redisRecord
	if err := decodeRedisRecord(raw, &rec); err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Data:      rec.Data,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Save inserts or replaces a session with a TTL matching its expiry.
func (rs *RedisStore) Save(ctx context.Context, s *Session) error {
	rec := redisRecord{
		Data:      s.Data,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	raw, err := encodeRedisRecord(rec)
	if err != nil {
		return err
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		// Already expired; storing it would create an immortal key with
		// no TTL, so just make sure it is gone.
		return rs.Delete(ctx, s.ID)
	}

	if err := rs.client.Set(ctx, redisKeyPrefix+s.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes a session. Unknown IDs are ignored.
func (rs *RedisStore) Delete(ctx context.Context, id string) error {
	if err := rs.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Cleanup is a no-op: Redis evicts expired keys itself.
func (rs *RedisStore) Cleanup(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// Close closes the Redis client.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

var _ Store = (*RedisStore)(nil)

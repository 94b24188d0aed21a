package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists checkpoints in Redis as JSON.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisStore creates a store on redisClient. ttl > 0 expires idle
// checkpoints; 0 keeps them forever.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key Key) (*Entry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Operations.WithLabelValues("redis", "load", "miss").Inc()
			return nil, ErrNotFound
		}
		Operations.WithLabelValues("redis", "load", "error").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		Operations.WithLabelValues("redis", "load", "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	Operations.WithLabelValues("redis", "load", "ok").Inc()
	return &entry, nil
}

// Save implements Store. The save counter is carried over from the previous
// entry when one exists.
func (s *RedisStore) Save(ctx context.Context, key Key, cursor string) error {
	var saves int64
	if prev, err := s.Load(ctx, key); err == nil {
		saves = prev.Saves
	}

	data, err := json.Marshal(Entry{Cursor: cursor, SavedAt: s.now(), Saves: saves + 1})
	if err != nil {
		Operations.WithLabelValues("redis", "save", "error").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, s.ttl).Err(); err != nil {
		Operations.WithLabelValues("redis", "save", "error").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	Operations.WithLabelValues("redis", "save", "ok").Inc()
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		Operations.WithLabelValues("redis", "delete", "error").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	Operations.WithLabelValues("redis", "delete", "ok").Inc()
	return nil
}

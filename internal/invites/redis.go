package invites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "foodtracker:invites:"

type RedisConfig struct {
	// Client is the Redis client instance
	Client *redis.Client
	// KeyPrefix is the prefix for all invitation keys
	KeyPrefix string
}

// RedisStore stores each invitation as a JSON value whose Redis TTL matches
// the invitation's lifetime.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: cfg.Client, keyPrefix: cfg.KeyPrefix, now: time.Now}, nil
}

// Dial connects to addr and verifies the connection with a ping.
func Dial(ctx context.Context, addr, keyPrefix string) (*RedisStore, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(RedisConfig{Client: cl, KeyPrefix: keyPrefix})
}

func (s *RedisStore) key(email string) string { return s.keyPrefix + normalizeEmail(email) }

func (s *RedisStore) Put(ctx context.Context, inv Invitation, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invitation ttl must be positive")
	}
	now := s.now()
	inv.Email = normalizeEmail(inv.Email)
	inv.CreatedAt = now
	inv.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invitation: %w", err)
	}
	if err := s.client.Set(ctx, s.key(inv.Email), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store invitation: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, email string) (*Invitation, error) {
	val, err := s.client.Get(ctx, s.key(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	var inv Invitation
	if err := json.Unmarshal([]byte(val), &inv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invitation: %w", err)
	}
	return &inv, nil
}

func (s *RedisStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }

package tokenstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "blacklist:token:"

// RedisTokenStore is a key-value store for token state shared between services.
// The auth service writes blacklisted access tokens on logout. Other services
// only read them.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a new RedisTokenStore instance.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Set stores value under key for ttl. A zero ttl keeps the key forever.
func (s *RedisTokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Exists reports whether key is present.
func (s *RedisTokenStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Blacklist marks an access token as revoked until it would have expired anyway.
func (s *RedisTokenStore) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	return s.Set(ctx, blacklistKey(token), "blacklisted", ttl)
}

// IsBlacklisted reports whether the access token was revoked.
func (s *RedisTokenStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return s.Exists(ctx, blacklistKey(token))
}

func blacklistKey(token string) string {
	return blacklistKeyPrefix + token
}

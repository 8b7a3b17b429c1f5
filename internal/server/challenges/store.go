// Package challenges keeps the short-lived mapping from a pending 2FA
// temp token to the user it was issued for.
package challenges

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces pending two-factor challenges in Redis.
const KeyPrefix = "2fa_pending:"

// Store maps temp tokens to user ids with a TTL. Get returns
// common.ErrorNotFound for unknown or expired tokens.
type Store interface {
	Put(ctx context.Context, token, userID string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, KeyPrefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (string, error) {
	userID, err := s.rdb.Get(ctx, KeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return userID, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, KeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

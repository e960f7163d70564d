package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	onlineKeyPrefix = "presence:online:"
	onlineSetKey    = "presence:online_users"
)

// RedisStore keeps online flags in Redis, for deployments that keep presence
// state out of the main database. Each online user has a per-user key plus
// membership in a set used for bulk reads and the startup reconcile.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetOnline(ctx context.Context, userID string, online bool) error {
	key := onlineKeyPrefix + userID

	pipe := s.client.Pipeline()
	if online {
		pipe.Set(ctx, key, "1", 0)
		pipe.SAdd(ctx, onlineSetKey, userID)
	} else {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, onlineSetKey, userID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}

	return nil
}

func (s *RedisStore) MarkAllOffline(ctx context.Context) (int64, error) {
	userIDs, err := s.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list online users: %w", err)
	}

	if len(userIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(userIDs)+1)
	for _, userID := range userIDs {
		keys = append(keys, onlineKeyPrefix+userID)
	}
	keys = append(keys, onlineSetKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear presence: %w", err)
	}

	return int64(len(userIDs)), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

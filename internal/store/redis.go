package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/models"
)

const latestTTL = 24 * time.Hour

// RedisStore caches the latest message of each chat so the chat directory
// does not have to hit SQL per chat. Appends invalidate the chat's entry
// and the directory repopulates it on the next read; writing the appended
// message directly could let two racing appends land out of order and pin
// a stale entry. Purely an accelerator: a miss falls through to the
// durable store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// latestKey returns the cache key for a chat's latest message.
func latestKey(chatID int64) string {
	return fmt.Sprintf("chat:%d:latest", chatID)
}

// InvalidateLatest drops the chat's cached entry so the next directory
// read goes through SQL.
func (s *RedisStore) InvalidateLatest(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, latestKey(chatID)).Err()
}

// SetLatest records msg as the chat's most recent message.
func (s *RedisStore) SetLatest(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, latestKey(msg.ChatID), data, latestTTL).Err()
}

// GetLatest returns the cached latest message for a chat, or nil on a
// cache miss.
func (s *RedisStore) GetLatest(ctx context.Context, chatID int64) (*models.Message, error) {
	data, err := s.client.Get(ctx, latestKey(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

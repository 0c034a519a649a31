package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	perrors "github.com/parleylabs/parley/pkg/errors"
	"github.com/parleylabs/parley/types"
)

// RedisStore provides a Redis-backed implementation of the Store interface.
// It uses JSON serialization and Redis key expiry for TTL-based cleanup.
// This implementation is suitable for distributed deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the default time-to-live applied when Put is called with a
// zero ttl. Default is 24 hours.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys. Default is "parley".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed conversation store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "parley",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Get retrieves the message history for a conference from Redis.
// A missing key (absent or expired) yields an empty history.
func (s *RedisStore) Get(ctx context.Context, conferenceID string) ([]types.Message, error) {
	if conferenceID == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.conversationKey(conferenceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, perrors.New("store", "Get", err).WithDetails(map[string]any{"conference_id": conferenceID})
	}

	var rec conversationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}

	return rec.Messages, nil
}

// Put replaces the conversation with the given history and refreshes its TTL.
func (s *RedisStore) Put(ctx context.Context, conferenceID string, messages []types.Message, ttl time.Duration) error {
	if conferenceID == "" {
		return ErrInvalidID
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	rec := conversationRecord{
		ConferenceID: conferenceID,
		Messages:     messages,
		UpdatedAt:    time.Now(),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	if err := s.client.Set(ctx, s.conversationKey(conferenceID), data, ttl).Err(); err != nil {
		return perrors.New("store", "Put", err).WithDetails(map[string]any{"conference_id": conferenceID})
	}

	return nil
}

// Delete removes a conversation from Redis.
func (s *RedisStore) Delete(ctx context.Context, conferenceID string) error {
	if conferenceID == "" {
		return ErrInvalidID
	}

	n, err := s.client.Del(ctx, s.conversationKey(conferenceID)).Result()
	if err != nil {
		return perrors.New("store", "Delete", err).WithDetails(map[string]any{"conference_id": conferenceID})
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping verifies connectivity to Redis. Used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// conversationKey generates the Redis key for a conference's history.
func (s *RedisStore) conversationKey(conferenceID string) string {
	return fmt.Sprintf("%s:conference:%s:history", s.prefix, conferenceID)
}

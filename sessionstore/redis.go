package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sessionwallet/provisioning-backend/interfaces"
)

const redisKeyPrefix = "sessionwallet:session:"

// RedisStore persists sessions in Redis, one key per origin. SET and DEL are
// atomic on the server side, preserving replace-wholesale semantics.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using a redis:// URL and verifies the
// connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get retrieves the session for the origin.
func (s *RedisStore) Get(ctx context.Context, origin interfaces.Origin) (*interfaces.LocalSession, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+string(origin)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not read session from redis: %w", err)
	}

	var session interfaces.LocalSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("could not parse session record: %w", err)
	}
	return &session, nil
}

// Replace overwrites the session for the origin in a single SET.
func (s *RedisStore) Replace(ctx context.Context, origin interfaces.Origin, session *interfaces.LocalSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not encode session record: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+string(origin), data, 0).Err(); err != nil {
		return fmt.Errorf("could not write session to redis: %w", err)
	}
	return nil
}

// Clear deletes the session for the origin.
func (s *RedisStore) Clear(ctx context.Context, origin interfaces.Origin) error {
	if err := s.client.Del(ctx, redisKeyPrefix+string(origin)).Err(); err != nil {
		return fmt.Errorf("could not delete session from redis: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client, shared with the event
// publisher when both are configured against the same instance.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

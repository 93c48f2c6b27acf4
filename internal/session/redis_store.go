// Package session provides the Redis-backed session store consulted during
// realtime authentication.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"inkwell/api/internal/auth"

	"github.com/redis/go-redis/v9"
)

// User is the profile subset attached to a session record.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is a live session as stored in Redis.
type Session struct {
	UserID    string    `json:"user_id"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore implements session token storage using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "session:",
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

// key generates the Redis key for a session token. Tokens are hashed so a
// Redis dump never contains usable credentials.
func (s *RedisStore) key(token string) string {
	return s.prefix + auth.HashToken(token)
}

// Save stores a session with expiration.
func (s *RedisStore) Save(ctx context.Context, token, userID string, user User, expiresAt time.Time) error {
	data := Session{
		UserID:    userID,
		User:      user,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	if err := s.client.Set(ctx, s.key(token), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// LookupByToken retrieves the session a token belongs to. A missing or
// expired token yields (nil, nil); errors are reserved for Redis failures.
func (s *RedisStore) LookupByToken(ctx context.Context, token string) (*Session, error) {
	jsonData, err := s.client.Get(ctx, s.key(token)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	var data Session
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	// Redis TTL already evicts expired records; the stored expiry is the
	// authority when clocks disagree.
	if !data.ExpiresAt.IsZero() && time.Now().After(data.ExpiresAt) {
		return nil, nil
	}

	return &data, nil
}

// Revoke deletes a session token.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Client exposes the underlying Redis client so other subsystems (pub/sub
// fan-out) can share the connection pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

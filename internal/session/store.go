// Package session provides Redis-backed cookie sessions gating the message,
// wall, and note routes. A session is created at login with the shared house
// key and expires after its TTL unless refreshed by activity.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bloodroom/sanctum/internal/message"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "sanctum:session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 12 * time.Hour
)

// ErrNotFound is returned by Get when the token has no live session.
var ErrNotFound = fmt.Errorf("session: not found")

// Session is a logged-in member's state stored in Redis.
type Session struct {
	Token      string `redis:"token"`
	Member     string `redis:"member"`
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// Store manages session state in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a session store connected to Redis at redisAddr. It pings
// the server before returning so a bad address fails at startup.
func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}
	return &Store{client: client}, nil
}

// Client returns the underlying Redis client for reuse by other stores.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Create starts a session for the given member and returns its token.
func (s *Store) Create(ctx context.Context, member message.Member) (string, error) {
	token := uuid.New().String()
	now := time.Now().Unix()

	key := SessionPrefix + token
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"token":       token,
		"member":      string(member),
		"created_at":  now,
		"last_active": now,
	})
	pipe.Expire(ctx, key, SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	return token, nil
}

// Get retrieves the session for a token, refreshing its TTL and last-active
// timestamp. Returns ErrNotFound if the token is unknown or expired.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	key := SessionPrefix + token
	cmd := s.client.HGetAll(ctx, key)
	result, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}

	var sess Session
	if err := cmd.Scan(&sess); err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, _ = pipe.Exec(ctx) // refresh is best effort

	return &sess, nil
}

// Delete removes the session for a token. Deleting an unknown token is a
// no-op.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, SessionPrefix+token).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

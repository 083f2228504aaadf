// Package redis provides a Redis-backed EphemeralStore shared by every
// instance of a deployment.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// DefaultPrefix namespaces connect-flow keys.
const DefaultPrefix = "sercha-connect:"

// Store implements driven.EphemeralStore on a Redis client.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ driven.EphemeralStore = (*Store)(nil)

// New creates a Store. An empty prefix uses DefaultPrefix.
func New(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, db int) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return New(client, ""), nil
}

// Set stores value under key for ttl.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("storing %s in redis: %w", key, err)
	}
	return nil
}

// Take reads and deletes key with GETDEL, so a value is consumed once.
func (s *Store) Take(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.GetDel(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("taking %s from redis: %w", key, err)
	}
	return value, true, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

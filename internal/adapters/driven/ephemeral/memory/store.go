// Package memory provides an in-process EphemeralStore for single-instance
// deployments and the CLI.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

// Store implements driven.EphemeralStore on go-cache.
type Store struct {
	mu sync.Mutex
	c  *gocache.Cache
}

var _ driven.EphemeralStore = (*Store)(nil)

// New creates a Store that purges expired keys every cleanupInterval.
func New(cleanupInterval time.Duration) *Store {
	return &Store{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Set stores value under key for ttl.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	s.c.Set(key, value, ttl)
	return nil
}

// Take reads and deletes key.
func (s *Store) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.c.Get(key)
	if !ok {
		return "", false, nil
	}
	s.c.Delete(key)
	value, _ := v.(string)
	return value, true, nil
}

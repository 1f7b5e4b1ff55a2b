// Package redis adapts go-redis into the two ephemeral, TTL'd uses the
// control plane has for shared state across multiple monitor instances:
// a distributed compose lock (internal/dispatcher) and a distributed
// alert dedup marker (internal/alertengine). Both are optional — when
// no client is configured, callers fall back to an in-process
// equivalent — so a single monitor instance never depends on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a *redis.Client with the lock/dedup operations the
// control plane needs.
type Store struct {
	client *redis.Client
}

// NewStore builds a Store around an already-connected client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// TryLock attempts to acquire a named lock for ttl, non-blocking.
// Returns false (no error) if another holder already has it.
func (s *Store) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, LockKey(name), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: try lock %s: %w", name, err)
	}
	return ok, nil
}

// Unlock releases a named lock early, ahead of its TTL.
func (s *Store) Unlock(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, LockKey(name)).Err(); err != nil {
		return fmt.Errorf("redis: unlock %s: %w", name, err)
	}
	return nil
}

// MarkSeen records serviceID/kind as alerted for window, returning
// whether it was already marked (an active dedup hit) before this call.
func (s *Store) MarkSeen(ctx context.Context, serviceID, kind string, window time.Duration) (alreadySeen bool, err error) {
	ok, err := s.client.SetNX(ctx, AlertDedupKey(serviceID, kind), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: mark seen %s/%s: %w", serviceID, kind, err)
	}
	return !ok, nil
}

package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupeStore implements ports.DedupeStore using Redis SET NX. It is the
// fast path of the dedupe guard; the events table is the durable one.
type DedupeStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupeStore creates a new Redis-backed dedupe store.
func NewDedupeStore(client *goredis.Client) *DedupeStore {
	return &DedupeStore{
		client: client,
		prefix: "dedupe:",
	}
}

// CheckAndSet atomically marks a (merchant, dedupe key) pair as seen.
// Returns true if the pair is new, false if it was already recorded.
func (s *DedupeStore) CheckAndSet(ctx context.Context, merchantID string, dedupeKey string, ttl time.Duration) (bool, error) {
	key := s.prefix + merchantID + ":" + dedupeKey
	result, err := s.client.SetArgs(ctx, key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Key already exists, pair was already seen
			return false, nil
		}
		return false, fmt.Errorf("redis dedupe check: %w", err)
	}
	return result == "OK", nil
}

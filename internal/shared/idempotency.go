package shared

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client-chosen key for retry-safe requests.
const IdempotencyHeader = "Idempotency-Key"

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore remembers processed keys in Redis for a retention window.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore constructs the store. Keys expire after ttl.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Claim records key for module, failing with ErrIdempotencyConflict when it
// was already claimed inside the retention window.
func (s *IdempotencyStore) Claim(ctx context.Context, module, key string) error {
	if s == nil || s.client == nil {
		return errors.New("idempotency store not initialised")
	}
	k, err := idempotencyKey(module, key)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, module, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	k, err := idempotencyKey(module, key)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, k).Err()
}

func idempotencyKey(module, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("idempotency key required")
	}
	if len(key) > 128 {
		return "", errors.New("idempotency key too long")
	}
	if module == "" {
		return "", errors.New("idempotency module required")
	}
	return "idempotency:" + module + ":" + key, nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss means no usable entry exists for the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry means the stored value could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// purgeBatch is the SCAN page size used by Purge.
const purgeBatch = 500

// Manager reads and writes enrollment payloads in Redis.
type Manager struct {
	redis *redis.Client
}

// NewManager panics on a nil client; callers without Redis simply do not
// build a Manager.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("cache: nil redis client")
	}
	return &Manager{redis: redisClient}
}

// Get returns the entry for key, or ErrCacheMiss when it is absent or stale.
// A stale entry found in Redis is removed.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry := &CacheEntry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, key, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry, nil
}

// Set stores entry until its Expires time. Stale entries and entries
// without a payload are silently skipped.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache: nil entry")
	}

	ttl := entry.TTL()
	if ttl <= 0 || len(entry.Data) == 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	if err := m.redis.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	CacheStoredBytes.Add(float64(len(raw)))
	return nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Purge removes every cached enrollment of one account and returns how many
// entries were deleted. An empty accountSwitchKey purges the caller's own
// account, leaving entries of switched accounts alone.
func (m *Manager) Purge(ctx context.Context, accountSwitchKey string) (int, error) {
	pattern := KeyPrefix + ":*"
	if accountSwitchKey != "" {
		pattern = KeyPrefix + ":*:account=" + accountSwitchKey
	}

	deleted := 0
	iter := m.redis.Scan(ctx, 0, pattern, purgeBatch).Iterator()
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.redis.Del(ctx, batch...).Result()
		if err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return fmt.Errorf("redis del: %w", err)
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		k := iter.Val()
		if accountSwitchKey == "" && strings.Contains(k, ":account=") {
			continue
		}
		batch = append(batch, k)
		if len(batch) >= purgeBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return deleted, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

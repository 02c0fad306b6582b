// Package cache stores CPS enrollment payloads in Redis.
//
// An audit over several contracts, or a rerun shortly after a partial
// failure, asks CPS for the same enrollments again. The cache keeps each
// successful payload for a bounded time so that those requests never reach
// the rate-limited API.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{EnrollmentID: 12345}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from CPS, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(http.StatusOK, resp.Header, body, cache.DefaultTTL))
//	}
//
// Entries honor the response's Expires header when CPS sends one and fall
// back to the configured TTL otherwise. Purge drops every entry of one
// account, e.g. before an audit that must not see cached data.
//
// # Metrics
//
//   - cps_cache_hits_total - Cache hits
//   - cps_cache_misses_total - Cache misses
//   - cps_cache_stored_bytes_total - Payload bytes written
//   - cps_cache_errors_total{operation} - Cache operation errors
package cache

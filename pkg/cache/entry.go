package cache

import (
	"bytes"
	"encoding/json"
	"time"
)

// CacheEntry represents a cached enrollment payload.
type CacheEntry struct {
	// Data is the enrollment document as returned by CPS
	Data json.RawMessage `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Payload returns a copy of the cached document.
func (e *CacheEntry) Payload() json.RawMessage {
	return json.RawMessage(bytes.Clone(e.Data))
}

package cache

import (
	"bytes"
	"net/http"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when no expires header is present
	DefaultTTL = 10 * time.Minute
)

// NewEntry builds a CacheEntry from a CPS response. The body is copied.
// An Expires header wins over ttl when present and in the future.
func NewEntry(statusCode int, header http.Header, body []byte, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:       bytes.Clone(body),
		StatusCode: statusCode,
		Expires:    parseExpires(header, now, ttl),
		CachedAt:   now,
	}
}

// parseExpires returns the Expires header time, or now+ttl when the header
// is absent or unparseable. A past Expires returns now, which Set skips.
func parseExpires(header http.Header, now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	expiresStr := header.Get("Expires")
	if expiresStr == "" {
		return now.Add(ttl)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(ttl)
	}

	if expires.Before(now) {
		return now
	}

	return expires
}

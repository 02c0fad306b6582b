package cache

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCacheEntry_Freshness(t *testing.T) {
	tests := []struct {
		name        string
		offset      time.Duration
		wantExpired bool
		wantTTLMin  time.Duration
		wantTTLMax  time.Duration
	}{
		{"ten minutes left", 10 * time.Minute, false, 10*time.Minute - time.Second, 10 * time.Minute},
		{"one second left", time.Second, false, 0, time.Second},
		{"expired a second ago", -time.Second, true, 0, 0},
		{"expired an hour ago", -time.Hour, true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &CacheEntry{Expires: time.Now().Add(tt.offset)}

			if got := e.IsExpired(); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if ttl := e.TTL(); ttl < tt.wantTTLMin || ttl > tt.wantTTLMax {
				t.Errorf("TTL() = %v, want in [%v, %v]", ttl, tt.wantTTLMin, tt.wantTTLMax)
			}
		})
	}
}

// The stored form keeps the enrollment document as JSON, so entries stay
// readable with redis-cli.
func TestCacheEntry_StoredFormIsReadable(t *testing.T) {
	e := &CacheEntry{
		Data:       json.RawMessage(`{"id":7,"csr":{"cn":"www.example.com"}}`),
		StatusCode: 200,
		Expires:    time.Now().Add(time.Minute),
	}

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(raw), `"data":{"id":7,"csr":{"cn":"www.example.com"}}`) {
		t.Errorf("stored form = %s, want the payload inline", raw)
	}

	var back CacheEntry
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if string(back.Data) != string(e.Data) {
		t.Errorf("Data = %s, want %s", back.Data, e.Data)
	}
}

func TestCacheEntry_PayloadIsCopy(t *testing.T) {
	entry := &CacheEntry{Data: []byte(`{"id":1}`)}

	p := entry.Payload()
	p[1] = 'X'

	if string(entry.Data) != `{"id":1}` {
		t.Errorf("Payload() shares storage with the entry: %s", entry.Data)
	}
}

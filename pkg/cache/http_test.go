package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	body := []byte(`{"id":42,"csr":{"cn":"www.example.com"}}`)
	entry := NewEntry(http.StatusOK, http.Header{}, body, 2*time.Minute)

	if string(entry.Data) != string(body) {
		t.Errorf("Data = %s, want %s", entry.Data, body)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
	}
	if entry.CachedAt.IsZero() {
		t.Error("CachedAt not set")
	}

	body[2] = 'X'
	if entry.Data[2] == 'X' {
		t.Error("NewEntry() shares storage with the response body")
	}
}

func TestParseExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header http.Header
		ttl    time.Duration
		want   time.Time
	}{
		{
			name:   "no expires header uses ttl",
			header: http.Header{},
			ttl:    time.Minute,
			want:   now.Add(time.Minute),
		},
		{
			name:   "zero ttl falls back to default",
			header: http.Header{},
			ttl:    0,
			want:   now.Add(DefaultTTL),
		},
		{
			name:   "expires header wins",
			header: http.Header{"Expires": []string{now.Add(time.Hour).Format(http.TimeFormat)}},
			ttl:    time.Minute,
			want:   now.Add(time.Hour),
		},
		{
			name:   "invalid expires header",
			header: http.Header{"Expires": []string{"soon"}},
			ttl:    time.Minute,
			want:   now.Add(time.Minute),
		},
		{
			name:   "past expires header",
			header: http.Header{"Expires": []string{now.Add(-time.Hour).Format(http.TimeFormat)}},
			ttl:    time.Minute,
			want:   now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseExpires(tt.header, now, tt.ttl); !got.Equal(tt.want) {
				t.Errorf("parseExpires() = %v, want %v", got, tt.want)
			}
		})
	}
}

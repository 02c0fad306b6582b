package client

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		detail string
		want   time.Duration
	}{
		{name: "nothing", want: 0},
		{name: "header seconds", header: "7", want: 7 * time.Second},
		{name: "header zero", header: "0", want: 0},
		{name: "body detail", detail: "Retry after: 12 seconds.", want: 12 * time.Second},
		{name: "body detail singular", detail: "Retry after: 1 second.", want: time.Second},
		{name: "header wins over detail", header: "3", detail: "Retry after: 12 seconds.", want: 3 * time.Second},
		{name: "bad header falls back to detail", header: "soon", detail: "Retry after: 4 seconds.", want: 4 * time.Second},
		{name: "unrelated detail", detail: "Too many requests", want: 0},
		{name: "past date", header: time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			if got := ParseRetryAfter(h, tt.detail); got != tt.want {
				t.Errorf("ParseRetryAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(30*time.Second).UTC().Format(http.TimeFormat))

	got := ParseRetryAfter(h, "")
	if got < 28*time.Second || got > 31*time.Second {
		t.Errorf("ParseRetryAfter() = %v, want about 30s", got)
	}
}

func TestParseProblem(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "lowercase detail", body: `{"title":"Too Many Requests","detail":"Retry after: 5 seconds."}`, want: "Retry after: 5 seconds."},
		{name: "capitalized detail", body: `{"Title":"Too Many Requests","Detail":"Retry after: 6 seconds."}`, want: "Retry after: 6 seconds."},
		{name: "title only", body: `{"title":"Internal Server Error"}`, want: "Internal Server Error"},
		{name: "plain text", body: "  upstream timeout\n", want: "upstream timeout"},
		{name: "empty", body: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseProblem([]byte(tt.body)); got != tt.want {
				t.Errorf("parseProblem() = %q, want %q", got, tt.want)
			}
		})
	}
}

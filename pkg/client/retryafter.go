package client

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// retryAfterDetail matches the wait hint CPS writes into 429 problem details,
// e.g. "Retry after: 12 seconds."
var retryAfterDetail = regexp.MustCompile(`Retry after:\s*(\d+)\s*seconds?`)

// problem is the subset of a CPS problem+json body the client reads.
// Field matching is case-insensitive, so both "detail" and "Detail" work.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// parseProblem extracts the problem detail from an error body. Bodies that
// are not JSON yield their trimmed text.
func parseProblem(body []byte) string {
	var p problem
	if err := json.Unmarshal(body, &p); err == nil {
		if p.Detail != "" {
			return p.Detail
		}
		return p.Title
	}
	return strings.TrimSpace(string(body))
}

// ParseRetryAfter returns the wait hint of a 429 response. The Retry-After
// header (seconds or HTTP date) wins over the body detail. Returns 0 when
// neither carries a usable hint.
func ParseRetryAfter(header http.Header, detail string) time.Duration {
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d.Round(time.Second)
			}
			return 0
		}
	}

	if m := retryAfterDetail.FindStringSubmatch(detail); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

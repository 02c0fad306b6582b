package client

import (
	"testing"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
		kind   enrollment.FailureKind
	}{
		{429, ErrorClassRateLimit, enrollment.FailureRateLimited},
		{500, ErrorClassServer, enrollment.FailureServerError},
		{502, ErrorClassServer, enrollment.FailureServerError},
		{503, ErrorClassServer, enrollment.FailureServerError},
		{401, ErrorClassAuth, enrollment.FailureClientError},
		{403, ErrorClassAuth, enrollment.FailureClientError},
		{400, ErrorClassClient, enrollment.FailureClientError},
		{404, ErrorClassClient, enrollment.FailureClientError},
	}

	for _, tt := range tests {
		got := classifyStatus(tt.status)
		if got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
		if kind := (&CPSError{ErrorClass: got}).Kind(); kind != tt.kind {
			t.Errorf("status %d Kind() = %s, want %s", tt.status, kind, tt.kind)
		}
	}

	if kind := (&CPSError{ErrorClass: ErrorClassNetwork}).Kind(); kind != enrollment.FailureTransportError {
		t.Errorf("network Kind() = %s, want transport_error", kind)
	}
}

func TestCPSError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CPSError
		want string
	}{
		{
			name: "with detail",
			err: &CPSError{
				StatusCode: 429,
				ErrorClass: ErrorClassRateLimit,
				Message:    "429 Too Many Requests",
				Detail:     "Retry after: 12 seconds.",
			},
			want: "CPS rate_limit error (status 429): 429 Too Many Requests: Retry after: 12 seconds.",
		},
		{
			name: "without detail",
			err: &CPSError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "500 Internal Server Error",
			},
			want: "CPS server error (status 500): 500 Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

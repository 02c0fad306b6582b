package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

func TestDefaultBackoffPolicy(t *testing.T) {
	b := DefaultBackoffPolicy()

	if b.SafetyMargin != 3*time.Second {
		t.Errorf("SafetyMargin = %v, want 3s", b.SafetyMargin)
	}
	if b.RateLimitWait != 5*time.Second {
		t.Errorf("RateLimitWait = %v, want 5s", b.RateLimitWait)
	}
}

func TestDefaultBackoff_Next(t *testing.T) {
	b := DefaultBackoff{SafetyMargin: 3 * time.Second, RateLimitWait: 5 * time.Second, MaxWait: time.Minute}

	tests := []struct {
		name      string
		outcome   enrollment.Outcome
		wantWait  time.Duration
		wantRetry bool
	}{
		{
			name:      "rate limited with hint",
			outcome:   enrollment.Outcome{Failure: enrollment.FailureRateLimited, RetryAfter: 10 * time.Second},
			wantWait:  13 * time.Second,
			wantRetry: true,
		},
		{
			name:      "rate limited without hint",
			outcome:   enrollment.Outcome{Failure: enrollment.FailureRateLimited},
			wantWait:  8 * time.Second,
			wantRetry: true,
		},
		{
			name:      "rate limited hint capped",
			outcome:   enrollment.Outcome{Failure: enrollment.FailureRateLimited, RetryAfter: 10 * time.Minute},
			wantWait:  time.Minute,
			wantRetry: true,
		},
		{
			name:      "server error retries immediately",
			outcome:   enrollment.Outcome{Failure: enrollment.FailureServerError},
			wantWait:  0,
			wantRetry: true,
		},
		{
			name:      "transport error retries immediately",
			outcome:   enrollment.Outcome{Failure: enrollment.FailureTransportError},
			wantWait:  0,
			wantRetry: true,
		},
		{
			name:      "client error is not retried",
			outcome:   enrollment.Outcome{Failure: enrollment.FailureClientError},
			wantRetry: false,
		},
		{
			name:      "success is not retried",
			outcome:   enrollment.Outcome{OK: true},
			wantRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wait, retry := b.Next(tt.outcome)
			if retry != tt.wantRetry {
				t.Errorf("retry = %v, want %v", retry, tt.wantRetry)
			}
			if retry && wait != tt.wantWait {
				t.Errorf("wait = %v, want %v", wait, tt.wantWait)
			}
		})
	}
}

func TestRealSleeper(t *testing.T) {
	s := RealSleeper{}

	start := time.Now()
	if err := s.Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 20ms", elapsed)
	}

	if err := s.Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) error = %v", err)
	}
}

func TestRealSleeper_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RealSleeper{}.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on cancelled context")
	}
}

package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// Common errors returned by the client.
var (
	// ErrUnusable is returned by Fetch once CPS has rejected the client's
	// credentials MaxAuthFailures times in a row. Every later call fails
	// with it as well.
	ErrUnusable = errors.New("cps client unusable")

	// ErrInvalidConfig is returned by New for a bad Config.
	ErrInvalidConfig = errors.New("invalid client config")
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents non-transient 4xx errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401 and 403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus maps a non-200 status code to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// CPSError represents a non-200 CPS response.
type CPSError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// Detail is the problem detail from the response body, if any.
	Detail string

	// RetryAfter is the server's wait hint for 429 responses, 0 if absent.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CPSError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("CPS %s error (status %d): %s: %s",
			e.ErrorClass, e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("CPS %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Kind maps the error onto the audit's failure kinds.
func (e *CPSError) Kind() enrollment.FailureKind {
	switch e.ErrorClass {
	case ErrorClassRateLimit:
		return enrollment.FailureRateLimited
	case ErrorClassServer:
		return enrollment.FailureServerError
	case ErrorClassNetwork:
		return enrollment.FailureTransportError
	default:
		return enrollment.FailureClientError
	}
}

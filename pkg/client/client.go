// Package client provides the CPS HTTP client used by the audit. It
// implements enrollment.Fetcher with optional Redis-backed caching and
// rate limiting.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/cache"
	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/Sternrassler/cps-audit/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for CPS client operations.
var (
	cpsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cps_requests_total",
		Help: "Total CPS requests by endpoint and status",
	}, []string{"endpoint", "status"})

	cpsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cps_request_duration_seconds",
		Help:    "CPS request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	cpsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cps_errors_total",
		Help: "Total CPS errors by class",
	}, []string{"class"})
)

// Endpoint labels.
const (
	endpointEnrollment  = "enrollment"
	endpointEnrollments = "enrollments"
	endpointContracts   = "contracts"
)

// Accept headers for the CPS object versions the client reads.
const (
	acceptEnrollment  = "application/vnd.akamai.cps.enrollment.v12+json"
	acceptEnrollments = "application/vnd.akamai.cps.enrollments.v11+json"
	acceptJSON        = "application/json"
)

// Client is the CPS client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger

	authFailures atomic.Int32
	unusable     atomic.Bool
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API host, e.g. "https://akab-xxxx.luna.akamaiapis.net".
	BaseURL string

	// AccountSwitchKey is sent on every request when set.
	AccountSwitchKey string

	// User-Agent header
	UserAgent string

	// Transport signs and sends requests. Nil means http.DefaultTransport,
	// which only works against unauthenticated test servers.
	Transport http.RoundTripper

	// Timeout bounds a single request including the body read.
	Timeout time.Duration

	// Redis enables the payload cache and the shared rate limit window.
	// Optional.
	Redis *redis.Client

	// CacheTTL is how long payloads stay cached. 0 disables the cache.
	CacheTTL time.Duration

	// RequestsPerSecond is the shared request budget. 0 disables the tracker.
	RequestsPerSecond int

	// MaxAuthFailures consecutive 401/403 responses make the client
	// unusable. 0 never gives up.
	MaxAuthFailures int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:           baseURL,
		UserAgent:         userAgent,
		Timeout:           30 * time.Second,
		CacheTTL:          cache.DefaultTTL,
		RequestsPerSecond: ratelimit.DefaultRequestsPerSecond,
		MaxAuthFailures:   3,
	}
}

// New creates a new CPS client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("%w: user-agent is required", ErrInvalidConfig)
	}

	if cfg.Timeout < 0 || cfg.CacheTTL < 0 || cfg.RequestsPerSecond < 0 || cfg.MaxAuthFailures < 0 {
		return nil, fmt.Errorf("%w: timeout, cache ttl, requests per second and max auth failures must be >= 0", ErrInvalidConfig)
	}

	logger := log.With().Str("component", "cps-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Transport: cfg.Transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		if cfg.CacheTTL > 0 {
			c.cache = cache.NewManager(cfg.Redis)
		}
		if cfg.RequestsPerSecond > 0 {
			c.tracker = ratelimit.NewTracker(cfg.Redis, cfg.RequestsPerSecond, logger)
		}
	}

	return c, nil
}

// Fetch retrieves one enrollment. Per-enrollment failures are reported in
// the Outcome; the error is non-nil only when the client is unusable.
func (c *Client) Fetch(ctx context.Context, id enrollment.ID) (enrollment.Outcome, error) {
	if c.unusable.Load() {
		return enrollment.Outcome{ID: id}, ErrUnusable
	}

	key := cache.CacheKey{EnrollmentID: id, AccountSwitchKey: c.config.AccountSwitchKey}
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			cpsRequestsTotal.WithLabelValues(endpointEnrollment, "cached").Inc()
			c.logger.Debug().Int64("enrollment_id", int64(id)).Msg("Enrollment served from cache")
			out := enrollment.Success(id, entry.Payload())
			out.StatusCode = entry.StatusCode
			return out, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Int64("enrollment_id", int64(id)).Msg("Cache get error")
		}
	}

	path := "/cps/v2/enrollments/" + strconv.FormatInt(int64(id), 10)
	resp, body, err := c.get(ctx, endpointEnrollment, path, nil, acceptEnrollment)
	if err != nil {
		return enrollment.Failed(id, enrollment.FailureTransportError, err), nil
	}

	if resp.StatusCode == http.StatusOK {
		if !json.Valid(body) {
			cpsErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			err := fmt.Errorf("enrollment %d: response body is not valid JSON", id)
			return enrollment.Failed(id, enrollment.FailureTransportError, err), nil
		}

		c.authFailures.Store(0)
		c.store(ctx, key, resp, body)

		out := enrollment.Success(id, json.RawMessage(body))
		out.StatusCode = resp.StatusCode
		return out, nil
	}

	cpsErr := c.newCPSError(resp, body)
	out := enrollment.Failed(id, cpsErr.Kind(), cpsErr)
	out.StatusCode = resp.StatusCode
	out.RetryAfter = cpsErr.RetryAfter

	switch cpsErr.ErrorClass {
	case ErrorClassRateLimit:
		if c.tracker != nil {
			if err := c.tracker.Penalize(ctx, cpsErr.RetryAfter); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit penalty")
			}
		}
	case ErrorClassAuth:
		n := int(c.authFailures.Add(1))
		if c.config.MaxAuthFailures > 0 && n >= c.config.MaxAuthFailures {
			c.unusable.Store(true)
			c.logger.Error().
				Int("auth_failures", n).
				Int("status", resp.StatusCode).
				Msg("CPS rejected credentials - client disabled")
			return out, fmt.Errorf("%w: %d consecutive authorization failures: %v", ErrUnusable, n, cpsErr)
		}
	}

	return out, nil
}

// store caches a successful payload. Cache errors are logged, never returned.
func (c *Client) store(ctx context.Context, key cache.CacheKey, resp *http.Response, body []byte) {
	if c.cache == nil {
		return
	}
	entry := cache.NewEntry(resp.StatusCode, resp.Header, body, c.config.CacheTTL)
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache enrollment")
	}
}

// get performs a GET against the CPS API and reads the whole body. The
// returned error is a transport error; any HTTP status is returned as-is.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, accept string) (*http.Response, []byte, error) {
	startTime := time.Now()
	defer func() {
		cpsRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.tracker != nil {
		if err := c.tracker.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				cpsRequestsTotal.WithLabelValues(endpoint, "cancelled").Inc()
				return nil, nil, fmt.Errorf("wait for rate limit: %w", err)
			}
			// Redis trouble must not stop the audit; the pool still bounds load.
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		}
	}

	u := c.baseURL.JoinPath(path)
	if query == nil {
		query = url.Values{}
	}
	if c.config.AccountSwitchKey != "" {
		query.Set("accountSwitchKey", c.config.AccountSwitchKey)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", accept)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", u.Path).
		Msg("Executing CPS request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cpsErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		cpsRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		cpsErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		cpsRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Reading response body failed")
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}

	cpsRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, body, nil
}

// newCPSError builds the error for a non-200 response and records it.
func (c *Client) newCPSError(resp *http.Response, body []byte) *CPSError {
	class := classifyStatus(resp.StatusCode)
	detail := parseProblem(body)

	e := &CPSError{
		StatusCode: resp.StatusCode,
		ErrorClass: class,
		Message:    resp.Status,
		Detail:     detail,
	}
	if class == ErrorClassRateLimit {
		e.RetryAfter = ParseRetryAfter(resp.Header, detail)
	}

	cpsErrorsTotal.WithLabelValues(string(class)).Inc()
	c.logger.Debug().
		Int("status", resp.StatusCode).
		Str("error_class", string(class)).
		Dur("retry_after", e.RetryAfter).
		Msg("CPS request error")

	return e
}

// PurgeCache removes every cached enrollment of the configured account.
func (c *Client) PurgeCache(ctx context.Context) (int, error) {
	if c.cache == nil {
		return 0, fmt.Errorf("%w: purge needs a Redis-backed cache", ErrInvalidConfig)
	}
	n, err := c.cache.Purge(ctx, c.config.AccountSwitchKey)
	if err != nil {
		return n, fmt.Errorf("purge cache: %w", err)
	}
	c.logger.Info().Int("entries", n).Msg("Enrollment cache purged")
	return n, nil
}

// Usable reports whether the client still accepts requests.
func (c *Client) Usable() bool {
	return !c.unusable.Load()
}

// Close releases idle connections. The Redis client belongs to the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

package waystone

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	defaultBaseURL            = "https://api.waystone.io/v1"
	defaultMaxRetries         = 3
	defaultBaseDelay          = time.Second
	defaultMaxDelay           = 300 * time.Second
	defaultJitter             = 0.2
	defaultMaxConcurrency     = 3
	defaultRateLimitPerMinute = 600
	defaultTokenSafetyMargin  = 30 * time.Second

	// rateWindow is the trailing interval the sliding-window limiter counts over.
	rateWindow = time.Minute
)

// DefaultPageSize is the number of items returned per page when none is requested.
const DefaultPageSize = 25

// MaxPageSize is the largest page size the API accepts.
const MaxPageSize = 100

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseURL            string
	httpClient         *http.Client
	maxRetries         int
	baseDelay          time.Duration
	maxDelay           time.Duration
	jitter             float64
	maxConcurrency     int
	rateLimitPerMinute int
	tokenSafetyMargin  time.Duration
	// tokenRateLimitPerMinute enforces the token endpoint's own limit
	// (documented as 10/min) when set. Zero leaves it unenforced.
	tokenRateLimitPerMinute int
	logger                  hclog.Logger
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		baseURL:            defaultBaseURL,
		maxRetries:         defaultMaxRetries,
		baseDelay:          defaultBaseDelay,
		maxDelay:           defaultMaxDelay,
		jitter:             defaultJitter,
		maxConcurrency:     defaultMaxConcurrency,
		rateLimitPerMinute: defaultRateLimitPerMinute,
		tokenSafetyMargin:  defaultTokenSafetyMargin,
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithMaxRetries sets the maximum number of attempts per logical call,
// including the first.
// Default: 3
func WithMaxRetries(count int) Option {
	return func(c *clientConfig) {
		c.maxRetries = count
	}
}

// WithBaseDelay sets the delay before the first retry. Subsequent retries
// double it up to the maximum delay.
// Default: 1 second
func WithBaseDelay(delay time.Duration) Option {
	return func(c *clientConfig) {
		c.baseDelay = delay
	}
}

// WithMaxDelay caps the computed backoff delay.
// Default: 300 seconds
func WithMaxDelay(delay time.Duration) Option {
	return func(c *clientConfig) {
		c.maxDelay = delay
	}
}

// WithJitter sets the randomization factor (0.0 to 1.0) applied to backoff
// delays to prevent synchronized retries across clients.
// Default: 0.2 (20%)
func WithJitter(factor float64) Option {
	return func(c *clientConfig) {
		c.jitter = factor
	}
}

// WithMaxConcurrency bounds the number of simultaneously in-flight HTTP
// requests.
// Default: 3
func WithMaxConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.maxConcurrency = n
	}
}

// WithRateLimit sets the number of requests admitted per trailing minute.
// Server-reported rate headers recalibrate this at runtime.
// Default: 600
func WithRateLimit(perMinute int) Option {
	return func(c *clientConfig) {
		c.rateLimitPerMinute = perMinute
	}
}

// WithTokenSafetyMargin sets how long before expiry a cached token is
// refreshed, tolerating clock skew and in-flight latency.
// Default: 30 seconds
func WithTokenSafetyMargin(margin time.Duration) Option {
	return func(c *clientConfig) {
		c.tokenSafetyMargin = margin
	}
}

// WithTokenRateLimit enforces a per-minute limit on token-exchange requests.
// The token endpoint has a tighter limit than resource endpoints (10/min);
// by default the client leaves respecting it to the caller.
func WithTokenRateLimit(perMinute int) Option {
	return func(c *clientConfig) {
		c.tokenRateLimitPerMinute = perMinute
	}
}

// WithLogger sets a structured logger. Default: a null logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

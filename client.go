package waystone

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/escnow/waystone-API/internal/auth"
	"github.com/escnow/waystone-API/internal/ratelimit"
	"github.com/escnow/waystone-API/internal/retry"
	"github.com/escnow/waystone-API/internal/transport"
)

// Client is the Waystone API client. It is safe for concurrent use; all
// logical calls share the rate limiter, the in-flight concurrency gate,
// and the cached access token.
type Client struct {
	baseURL   string
	transport *transport.Client
	tokens    *auth.Provider
	limiter   *ratelimit.Limiter
	policy    *retry.Policy
	inflight  *semaphore.Weighted
	logger    hclog.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates a Waystone client with the given OAuth2 client credentials.
func New(clientID, clientSecret string, opts ...Option) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var tokenLimiter *ratelimit.Limiter
	if cfg.tokenRateLimitPerMinute > 0 {
		tokenLimiter = ratelimit.New(cfg.tokenRateLimitPerMinute, rateWindow, logger.Named("tokenlimit"))
	}

	c := &Client{
		baseURL: cfg.baseURL,
		transport: transport.New(transport.Config{
			BaseURL:    cfg.baseURL,
			HTTPClient: cfg.httpClient,
			Logger:     logger.Named("transport"),
		}),
		tokens: auth.New(auth.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			BaseURL:      cfg.baseURL,
			HTTPClient:   cfg.httpClient,
			SafetyMargin: cfg.tokenSafetyMargin,
			Limiter:      tokenLimiter,
			Logger:       logger.Named("auth"),
		}),
		limiter: ratelimit.New(cfg.rateLimitPerMinute, rateWindow, logger.Named("ratelimit")),
		policy: &retry.Policy{
			MaxRetries: cfg.maxRetries,
			BaseDelay:  cfg.baseDelay,
			MaxDelay:   cfg.maxDelay,
			Jitter:     cfg.jitter,
			Logger:     logger.Named("retry"),
		},
		inflight: semaphore.NewWeighted(int64(cfg.maxConcurrency)),
		logger:   logger,
	}

	return c, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Do issues a request against an arbitrary API path, running it through the
// full rate-limit, authentication, and retry pipeline. It is the escape
// hatch for endpoints the resource facade does not model. When out is
// non-nil, the response body is decoded into it.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.checkClosed(); err != nil {
		return err
	}

	req := &transport.Request{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
	}
	return c.do(ctx, req, out)
}

// do pushes one logical call through the pipeline. Each attempt passes
// rate-limiter admission, acquires a fresh-enough token, and holds an
// in-flight slot only for the duration of the HTTP call itself.
func (c *Client) do(ctx context.Context, req *transport.Request, out any) error {
	attempt := func(ctx context.Context) (*transport.Response, error) {
		if err := c.limiter.Admit(ctx); err != nil {
			return nil, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		if err := c.inflight.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		resp, err := c.transport.Send(ctx, req, token)
		c.inflight.Release(1)

		if resp != nil {
			c.limiter.Observe(resp.Rate)
		}
		return resp, err
	}

	resp, err := c.policy.Execute(ctx, attempt, c.tokens.Refresh)
	if err != nil {
		return wrapError(err)
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return &Error{
				Kind:       KindUnknown,
				StatusCode: resp.StatusCode,
				Message:    "malformed response body",
				err:        err,
			}
		}
	}
	return nil
}

// Authenticate eagerly acquires an access token. Calls lazily fetch a token
// on first use, so this is only needed to validate credentials up front.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if _, err := c.tokens.Token(ctx); err != nil {
		return wrapError(err)
	}
	return nil
}

// Close releases the client. Subsequent operations return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

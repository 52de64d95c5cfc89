// Package auth acquires and caches OAuth2 client-credentials bearer tokens.
// The provider owns the token lifecycle: proactive refresh ahead of expiry,
// coalesced refreshes under concurrency, and forced invalidation after a 401.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"

	"github.com/escnow/waystone-API/internal/ratelimit"
	"github.com/escnow/waystone-API/internal/transport"
)

// tokenPath is the credential-exchange endpoint, relative to the base URL.
const tokenPath = "/oauth/token"

// Provider exchanges client credentials for bearer tokens and caches the
// result until it approaches expiry.
type Provider struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	safetyMargin time.Duration
	limiter      *ratelimit.Limiter // optional token-endpoint limiter
	logger       hclog.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time // issuance + ttl
	refreshAt time.Time // issuance + ttl - safetyMargin

	group singleflight.Group
}

// Config configures a token provider.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	HTTPClient   *http.Client
	SafetyMargin time.Duration
	// Limiter, when set, gates exchange requests against the token
	// endpoint's own rate limit. Nil leaves that limit to the caller.
	Limiter *ratelimit.Limiter
	Logger  hclog.Logger
}

// New creates a token provider.
func New(cfg Config) *Provider {
	p := &Provider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.BaseURL + tokenPath,
		httpClient:   cfg.HTTPClient,
		safetyMargin: cfg.SafetyMargin,
		limiter:      cfg.Limiter,
		logger:       cfg.Logger,
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if p.logger == nil {
		p.logger = hclog.NewNullLogger()
	}
	return p
}

// Token returns a bearer token that is valid for at least the safety margin.
// Concurrent callers finding an expired token trigger exactly one exchange
// request; the rest await its result.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token := p.token
	fresh := token != "" && time.Now().Before(p.refreshAt)
	p.mu.RUnlock()

	if fresh {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (any, error) {
		// Another coalesced caller may have refreshed while we queued.
		p.mu.RLock()
		token := p.token
		fresh := token != "" && time.Now().Before(p.refreshAt)
		p.mu.RUnlock()
		if fresh {
			return token, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next Token call performs a fresh
// exchange. Used by the one-shot 401 recovery path.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.refreshAt = time.Time{}
	p.mu.Unlock()
}

// Refresh invalidates the cached token and acquires a new one.
func (p *Provider) Refresh(ctx context.Context) error {
	p.Invalidate()
	_, err := p.Token(ctx)
	return err
}

// tokenResponse is the token endpoint's success body.
type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   float64 `json:"expires_in"`
}

// refresh performs the credential exchange. Nothing is cached on failure.
func (p *Provider) refresh(ctx context.Context) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Admit(ctx); err != nil {
			return "", err
		}
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", authError(fmt.Sprintf("build token request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	p.logger.Debug("refreshing access token", "token_url", p.tokenURL)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", authError(fmt.Sprintf("token exchange: %v", err), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", authError(fmt.Sprintf("read token response: %v", err), err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &transport.APIError{
			Kind:          transport.KindAuthentication,
			StatusCode:    resp.StatusCode,
			Message:       fmt.Sprintf("token exchange failed: %s", strings.TrimSpace(string(body))),
			TokenExchange: true,
		}
		return "", apiErr
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", authError("malformed token response", err)
	}
	if tok.AccessToken == "" || tok.ExpiresIn <= 0 {
		return "", authError("token response missing access_token or expires_in", nil)
	}

	issued := time.Now()
	ttl := time.Duration(tok.ExpiresIn * float64(time.Second))
	margin := p.safetyMargin
	if margin >= ttl {
		// Degenerate configuration; keep a sliver of usable lifetime.
		margin = ttl / 2
	}

	p.mu.Lock()
	p.token = tok.AccessToken
	p.expiresAt = issued.Add(ttl)
	p.refreshAt = issued.Add(ttl - margin)
	p.mu.Unlock()

	p.logger.Debug("access token refreshed", "expires_in", ttl)

	return tok.AccessToken, nil
}

func authError(msg string, cause error) *transport.APIError {
	return &transport.APIError{
		Kind:          transport.KindAuthentication,
		Message:       msg,
		Err:           cause,
		TokenExchange: true,
	}
}

// Package transport issues HTTP calls against the Waystone API and maps
// responses to typed results. It attaches authentication and correlation
// headers, serializes JSON bodies, parses the error envelope, and extracts
// rate-limit headers for the limiter to recalibrate against.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Request describes a single logical API call. It is immutable per attempt;
// retries reuse the same descriptor.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// RateInfo holds the server's authoritative rate-limit accounting, parsed
// from the X-RateLimit-* response headers.
type RateInfo struct {
	Present   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Response is a raw API response. Body is fully read and the connection
// released before Send returns.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Rate       RateInfo
	RequestID  string // client-generated correlation id sent with the request
}

// Client sends requests to the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     hclog.Logger
}

// Config configures a transport client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     hclog.Logger
}

// New creates a transport client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	return c
}

// Send executes one HTTP attempt. On a non-2xx status it returns both the
// parsed response and the classified error so callers can still observe
// rate-limit headers. Context cancellation is returned as the context's own
// error, never reclassified as a network failure.
func (c *Client) Send(ctx context.Context, req *Request, token string) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Kind: KindNetwork, Err: err, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Kind: KindNetwork, Err: err, Message: "read response body"}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Rate:       parseRateHeaders(httpResp.Header),
		RequestID:  requestID,
	}

	if httpResp.StatusCode >= 400 {
		apiErr := parseErrorResponse(httpResp, body)
		c.logger.Debug("request failed",
			"method", req.Method, "path", req.Path,
			"status", httpResp.StatusCode, "kind", apiErr.Kind,
			"request_id", requestID)
		return resp, apiErr
	}

	return resp, nil
}

// errorEnvelope is the API's error body shape.
type errorEnvelope struct {
	Error struct {
		Code       string            `json:"code"`
		Message    string            `json:"message"`
		Details    map[string]string `json:"details"`
		RequestID  string            `json:"requestId"`
		RetryAfter float64           `json:"retryAfter"`
	} `json:"error"`
}

// parseErrorResponse builds a typed error from a failed response. A missing
// or malformed envelope still yields a classified error from the status line.
func parseErrorResponse(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Kind:       ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header),
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && (envelope.Error.Code != "" || envelope.Error.Message != "") {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
		apiErr.RequestID = envelope.Error.RequestID
		if apiErr.RetryAfter == 0 && envelope.Error.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Error.RetryAfter * float64(time.Second))
		}
		return apiErr
	}

	apiErr.Message = http.StatusText(resp.StatusCode)
	return apiErr
}

// parseRetryAfter reads the Retry-After header as delay seconds.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// parseRateHeaders extracts the X-RateLimit-* headers. Reset is an epoch
// timestamp in seconds.
func parseRateHeaders(h http.Header) RateInfo {
	remaining := h.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return RateInfo{}
	}

	info := RateInfo{Present: true}
	if n, err := strconv.Atoi(remaining); err == nil {
		info.Remaining = n
	} else {
		return RateInfo{}
	}
	if n, err := strconv.Atoi(h.Get("X-RateLimit-Limit")); err == nil {
		info.Limit = n
	}
	if epoch, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil && epoch > 0 {
		info.Reset = time.Unix(epoch, 0)
	}
	return info
}

// IsCancellation reports whether err is a context cancellation or deadline
// outcome rather than a classified API failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

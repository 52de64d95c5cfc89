package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := New(Config{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	return client, server
}

func TestSend_AttachesHeaders(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	req := &Request{
		Method: http.MethodPost,
		Path:   "/Tickets",
		Body:   map[string]string{"title": "hello"},
	}
	if _, err := client.Send(context.Background(), req, "tok-123"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if auth := got.Header.Get("Authorization"); auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer tok-123")
	}
	if ct := got.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header is missing")
	}

	var body map[string]string
	if err := json.Unmarshal(gotBody, &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body["title"] != "hello" {
		t.Errorf("body title = %q, want %q", body["title"], "hello")
	}
}

func TestSend_EncodesQuery(t *testing.T) {
	var gotURL *url.URL
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	query := url.Values{}
	query.Set("page", "2")
	query.Set("filter", "status eq 1")

	req := &Request{Method: http.MethodGet, Path: "/Tickets", Query: query}
	if _, err := client.Send(context.Background(), req, "tok"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotURL.Query().Get("page") != "2" {
		t.Errorf("page = %q, want 2", gotURL.Query().Get("page"))
	}
	if gotURL.Query().Get("filter") != "status eq 1" {
		t.Errorf("filter = %q, want %q", gotURL.Query().Get("filter"), "status eq 1")
	}
}

func TestSend_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{400, KindValidation},
		{401, KindAuthentication},
		{403, KindAuthorization},
		{404, KindNotFound},
		{429, KindRateLimit},
		{500, KindServerFault},
		{503, KindServerFault},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			defer server.Close()

			req := &Request{Method: http.MethodGet, Path: "/x"}
			resp, err := client.Send(context.Background(), req, "tok")
			if err == nil {
				t.Fatal("Send() error = nil, want classified error")
			}
			if resp == nil {
				t.Fatal("Send() should return the response alongside the error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error is %T, want *APIError", err)
			}
			if apiErr.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", apiErr.Kind, tt.kind)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
		})
	}
}

func TestSend_ParsesErrorEnvelope(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"InvalidField","message":"title is required","details":{"title":"missing"},"requestId":"req-42","retryAfter":5}}`))
	})
	defer server.Close()

	req := &Request{Method: http.MethodPost, Path: "/Tickets"}
	_, err := client.Send(context.Background(), req, "tok")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.Code != "InvalidField" {
		t.Errorf("Code = %q, want InvalidField", apiErr.Code)
	}
	if apiErr.Message != "title is required" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "title is required")
	}
	if apiErr.Details["title"] != "missing" {
		t.Errorf("Details[title] = %q, want missing", apiErr.Details["title"])
	}
	if apiErr.RequestID != "req-42" {
		t.Errorf("RequestID = %q, want req-42", apiErr.RequestID)
	}
	if apiErr.RetryAfter != 5*time.Second {
		t.Errorf("RetryAfter = %v, want 5s", apiErr.RetryAfter)
	}
}

func TestSend_MalformedErrorBody(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("<html>gateway error</html>"))
	})
	defer server.Close()

	req := &Request{Method: http.MethodGet, Path: "/x"}
	_, err := client.Send(context.Background(), req, "tok")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.Kind != KindServerFault {
		t.Errorf("Kind = %v, want %v", apiErr.Kind, KindServerFault)
	}
	if apiErr.Message != http.StatusText(http.StatusServiceUnavailable) {
		t.Errorf("Message = %q, want status text fallback", apiErr.Message)
	}
}

func TestSend_RetryAfterHeaderWins(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"RateLimited","message":"slow down","retryAfter":2}}`))
	})
	defer server.Close()

	req := &Request{Method: http.MethodGet, Path: "/x"}
	_, err := client.Send(context.Background(), req, "tok")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want header value 7s", apiErr.RetryAfter)
	}
}

func TestSend_ParsesRateHeaders(t *testing.T) {
	reset := time.Now().Add(30 * time.Second).Unix()
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "600")
		w.Header().Set("X-RateLimit-Remaining", "17")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	req := &Request{Method: http.MethodGet, Path: "/x"}
	resp, err := client.Send(context.Background(), req, "tok")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !resp.Rate.Present {
		t.Fatal("Rate.Present = false, want true")
	}
	if resp.Rate.Limit != 600 {
		t.Errorf("Rate.Limit = %d, want 600", resp.Rate.Limit)
	}
	if resp.Rate.Remaining != 17 {
		t.Errorf("Rate.Remaining = %d, want 17", resp.Rate.Remaining)
	}
	if resp.Rate.Reset.Unix() != reset {
		t.Errorf("Rate.Reset = %v, want unix %d", resp.Rate.Reset, reset)
	}
}

func TestSend_NoRateHeaders(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()

	req := &Request{Method: http.MethodGet, Path: "/x"}
	resp, err := client.Send(context.Background(), req, "tok")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Rate.Present {
		t.Error("Rate.Present = true, want false without headers")
	}
}

func TestSend_NetworkError(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1"})

	req := &Request{Method: http.MethodGet, Path: "/x"}
	_, err := client.Send(context.Background(), req, "tok")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.Kind != KindNetwork {
		t.Errorf("Kind = %v, want %v", apiErr.Kind, KindNetwork)
	}
	if apiErr.Unwrap() == nil {
		t.Error("network error should wrap its cause")
	}
}

func TestSend_ContextCancellation(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := &Request{Method: http.MethodGet, Path: "/x"}
	_, err := client.Send(ctx, req, "tok")

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want context.DeadlineExceeded", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("cancellation must not be reclassified as an API error")
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation(context.Canceled) {
		t.Error("IsCancellation(context.Canceled) = false")
	}
	if !IsCancellation(context.DeadlineExceeded) {
		t.Error("IsCancellation(context.DeadlineExceeded) = false")
	}
	if IsCancellation(&APIError{Kind: KindNetwork}) {
		t.Error("IsCancellation(network error) = true")
	}
}

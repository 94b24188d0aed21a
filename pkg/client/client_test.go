package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/pure-api-client/internal/testutil"
	"github.com/Sternrassler/pure-api-client/pkg/registry"
	"github.com/rs/zerolog"
)

const testKey = "test-key"

// newTestClient creates a client pointed at mock with fast retries.
func newTestClient(t *testing.T, mock *testutil.MockPure, mutate func(*Config)) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.Domain(), testKey)
	cfg.Protocol = "http"
	cfg.Version = "524"
	cfg.Retry = fastRetry(3)
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError error
	}{
		{
			name:   "valid config",
			config: DefaultConfig("experts.umn.edu", "key"),
		},
		{
			name:        "missing domain",
			config:      DefaultConfig("", "key"),
			expectError: ErrMissingDomain,
		},
		{
			name:        "missing key",
			config:      DefaultConfig("experts.umn.edu", ""),
			expectError: ErrMissingKey,
		},
		{
			name: "invalid protocol",
			config: Config{
				Protocol: "ftp",
				Domain:   "experts.umn.edu",
				APIKey:   "key",
			},
			expectError: ErrInvalidProtocol,
		},
		{
			name: "invalid version",
			config: Config{
				Domain:  "experts.umn.edu",
				APIKey:  "key",
				Version: "bogus",
			},
			expectError: registry.ErrInvalidVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("New() error = %v, want %v", err, tt.expectError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("experts.umn.edu", "key")

	if cfg.Protocol != "https" {
		t.Errorf("Protocol = %q, want https", cfg.Protocol)
	}
	if cfg.BasePath != "ws/api" {
		t.Errorf("BasePath = %q, want ws/api", cfg.BasePath)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 0 {
		t.Errorf("Retry.MaxAttempts = %d, want 0 (unbounded)", cfg.Retry.MaxAttempts)
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{
			name:     "defaults use latest version",
			mutate:   func(c *Config) {},
			expected: "https://experts.umn.edu/ws/api/524/",
		},
		{
			name:     "explicit version",
			mutate:   func(c *Config) { c.Version = "520" },
			expected: "https://experts.umn.edu/ws/api/520/",
		},
		{
			name: "custom protocol and path",
			mutate: func(c *Config) {
				c.Protocol = "http"
				c.BasePath = "/pure/api/"
			},
			expected: "http://experts.umn.edu/pure/api/524/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("experts.umn.edu", "key")
			tt.mutate(&cfg)

			client, err := New(cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if client.BaseURL() != tt.expected {
				t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), tt.expected)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{logger: zerolog.Nop()}
	ctx := context.Background()

	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{name: "network error", err: &RequestError{Err: errors.New("connection refused")}, expected: ErrorClassNetwork},
		{name: "client error 404", err: &HTTPError{StatusCode: 404, ErrorClass: classifyStatus(404)}, expected: ErrorClassClient},
		{name: "client error 403", err: &HTTPError{StatusCode: 403, ErrorClass: classifyStatus(403)}, expected: ErrorClassClient},
		{name: "rate limit 429", err: &HTTPError{StatusCode: 429, ErrorClass: classifyStatus(429)}, expected: ErrorClassRateLimit},
		{name: "server error 500", err: &HTTPError{StatusCode: 500, ErrorClass: classifyStatus(500)}, expected: ErrorClassServer},
		{name: "server error 503", err: &HTTPError{StatusCode: 503, ErrorClass: classifyStatus(503)}, expected: ErrorClassServer},
		{name: "breaker open", err: &ClientError{Err: errors.New("circuit breaker is open")}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := client.classifyError(ctx, tt.err)
			if result != tt.expected {
				t.Errorf("classifyError() = %q, want %q", result, tt.expected)
			}
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if got := client.classifyError(cancelled, &RequestError{Err: context.Canceled}); got != "" {
		t.Errorf("classifyError() after cancel = %q, want empty class", got)
	}
}

func TestGet_HeadersAndURL(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetResponse("persons/123", testutil.NewJSONResponse(`{"uuid": "abc"}`))

	client := newTestClient(t, mock, func(c *Config) {
		c.Headers = map[string]string{"X-Trace": "yes"}
	})

	resp, err := client.Get(context.Background(), "persons/123", url.Values{"fields": {"uuid"}})
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}

	doc, err := resp.JSON()
	if err != nil {
		t.Fatalf("JSON() failed: %v", err)
	}
	if doc["uuid"] != "abc" {
		t.Errorf("uuid = %v, want abc", doc["uuid"])
	}

	requests := mock.Requests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	req := requests[0]

	if req.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", req.Method)
	}
	if req.Query.Get("fields") != "uuid" {
		t.Errorf("fields = %q, want uuid", req.Query.Get("fields"))
	}
	for header, want := range map[string]string{
		"Accept":         "application/json",
		"Accept-Charset": "utf-8",
		"api-key":        testKey,
		"X-Trace":        "yes",
	} {
		if got := req.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestFilter_SendsJSONBody(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetCollection("research-outputs", testutil.Records(3))

	client := newTestClient(t, mock, nil)

	resp, err := client.Filter(context.Background(), "research-outputs", map[string]any{"size": 2, "offset": 0})
	if err != nil {
		t.Fatalf("Filter() failed: %v", err)
	}

	page, err := resp.Page()
	if err != nil {
		t.Fatalf("Page() failed: %v", err)
	}
	if page.Count != 3 {
		t.Errorf("Count = %d, want 3", page.Count)
	}
	if len(page.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(page.Items))
	}

	req := mock.Requests()[0]
	if req.Method != http.MethodPost {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if size := req.JSONBody()["size"]; size != float64(2) {
		t.Errorf("body size = %v, want 2", size)
	}
}

func TestDo_InvalidCollectionMakesNoRequest(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()

	client := newTestClient(t, mock, nil)

	_, err := client.Get(context.Background(), "bogus/1", nil)
	if !errors.Is(err, registry.ErrInvalidCollection) {
		t.Errorf("Get() error = %v, want invalid collection", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("Expected no request, got %d", mock.RequestCount())
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetResponse("persons/missing", testutil.NewNotFoundResponse())

	client := newTestClient(t, mock, nil)

	_, err := client.Get(context.Background(), "persons/missing", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", httpErr.StatusCode)
	}
	if httpErr.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %q, want client", httpErr.ErrorClass)
	}
	if len(httpErr.Body) == 0 {
		t.Error("HTTPError should carry the response body")
	}
	if mock.RequestCount() != 1 {
		t.Errorf("Expected 1 request for client error, got %d", mock.RequestCount())
	}
}

func TestDo_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetSequence("persons",
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewJSONResponse(`{"count": 0}`),
	)

	client := newTestClient(t, mock, nil)

	resp, err := client.Get(context.Background(), "persons", nil)
	if err != nil {
		t.Fatalf("Get() failed after retry: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("Expected 3 requests, got %d", mock.RequestCount())
	}
}

func TestDo_RetryOnRateLimit(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetSequence("persons",
		testutil.NewRateLimitResponse("0"),
		testutil.NewJSONResponse(`{"count": 0}`),
	)

	client := newTestClient(t, mock, nil)

	if _, err := client.Get(context.Background(), "persons", nil); err != nil {
		t.Fatalf("Get() failed after rate limit: %v", err)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("Expected 2 requests, got %d", mock.RequestCount())
	}
	if state := client.RateLimitState(); state.LastStatus != http.StatusTooManyRequests {
		t.Errorf("LastStatus = %d, want 429", state.LastStatus)
	}
}

func TestDo_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetResponse("persons", testutil.NewServerErrorResponse())

	client := newTestClient(t, mock, nil)

	_, err := client.Get(context.Background(), "persons", nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected wrapped 500 HTTPError, got %v", err)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("Expected 3 requests, got %d", mock.RequestCount())
	}
}

func TestDo_NetworkError(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	domain := mock.Domain()
	mock.Close()

	cfg := DefaultConfig(domain, testKey)
	cfg.Protocol = "http"
	cfg.Retry = fastRetry(2)

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = client.Get(context.Background(), "persons", nil)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected *RequestError, got %T: %v", err, err)
	}
	if reqErr.ResourcePath != "persons" {
		t.Errorf("ResourcePath = %q, want persons", reqErr.ResourcePath)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetResponse("persons", testutil.NewServerErrorResponse())

	client := newTestClient(t, mock, func(c *Config) {
		c.Retry = RetryConfig{MaxAttempts: 0, InitialBackoff: time.Second, MaxBackoff: time.Second, BackoffMultiplier: 1}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "persons", nil)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected *RequestError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestDo_BreakerOpens(t *testing.T) {
	mock := testutil.NewMockPure("524", testKey)
	defer mock.Close()
	mock.SetResponse("persons", testutil.NewServerErrorResponse())

	client := newTestClient(t, mock, func(c *Config) {
		c.Retry = NoRetry()
		c.Breaker = &BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Minute}
	})

	for i := 0; i < 2; i++ {
		var httpErr *HTTPError
		if _, err := client.Get(context.Background(), "persons", nil); !errors.As(err, &httpErr) {
			t.Fatalf("attempt %d: expected HTTPError, got %v", i, err)
		}
	}

	_, err := client.Get(context.Background(), "persons", nil)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("Expected *ClientError from open breaker, got %T: %v", err, err)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("Expected open breaker to short-circuit, got %d requests", mock.RequestCount())
	}
}

func TestDecodePage(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		wantCount       int
		wantHasCount    bool
		wantHasItems    bool
		wantItems       int
		wantMoreChanges bool
		wantHasMore     bool
		wantToken       string
	}{
		{
			name:         "collection page",
			body:         `{"count": 250, "items": [{"uuid": "a"}, {"uuid": "b"}]}`,
			wantCount:    250,
			wantHasCount: true,
			wantHasItems: true,
			wantItems:    2,
		},
		{
			name:         "count only",
			body:         `{"count": 250}`,
			wantCount:    250,
			wantHasCount: true,
		},
		{
			name:            "empty change page",
			body:            `{"count": 0, "moreChanges": true, "resumptionToken": "eyJzIjoxfQ=="}`,
			wantHasCount:    true,
			wantMoreChanges: true,
			wantHasMore:     true,
			wantToken:       "eyJzIjoxfQ==",
		},
		{
			name:         "numeric token and null items",
			body:         `{"count": 1, "items": null, "moreChanges": false, "resumptionToken": 194135372}`,
			wantCount:    1,
			wantHasCount: true,
			wantHasMore:  true,
			wantToken:    "194135372",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := DecodePage([]byte(tt.body))
			if err != nil {
				t.Fatalf("DecodePage() error = %v", err)
			}
			if page.Count != tt.wantCount || page.HasCount() != tt.wantHasCount {
				t.Errorf("Count = %d (present %v), want %d (present %v)", page.Count, page.HasCount(), tt.wantCount, tt.wantHasCount)
			}
			if page.HasItems() != tt.wantHasItems || len(page.Items) != tt.wantItems {
				t.Errorf("Items = %d (present %v), want %d (present %v)", len(page.Items), page.HasItems(), tt.wantItems, tt.wantHasItems)
			}
			if page.MoreChanges != tt.wantMoreChanges || page.HasMoreChanges() != tt.wantHasMore {
				t.Errorf("MoreChanges = %v (present %v), want %v (present %v)", page.MoreChanges, page.HasMoreChanges(), tt.wantMoreChanges, tt.wantHasMore)
			}
			if page.ResumptionToken != tt.wantToken {
				t.Errorf("ResumptionToken = %q, want %q", page.ResumptionToken, tt.wantToken)
			}
		})
	}

	if _, err := DecodePage([]byte(`not json`)); err == nil {
		t.Error("DecodePage() should fail on malformed body")
	}
}

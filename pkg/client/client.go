// Package client provides the core Pure API HTTP client with collection
// validation, rate limiting, retries and error classification.
package client

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
	"strings"
	"time"

	"github.com/Sternrassler/pure-api-client/pkg/logging"
	"github.com/Sternrassler/pure-api-client/pkg/ratelimit"
	"github.com/Sternrassler/pure-api-client/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prometheus metrics for Pure client operations.
var (
	pureRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pure_requests_total",
		Help: "Total Pure API requests by collection and status",
	}, []string{"collection", "status"})

	pureRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pure_request_duration_seconds",
		Help:    "Pure API request duration in seconds by collection, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"collection"})

	pureErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pure_errors_total",
		Help: "Total Pure API errors by class",
	}, []string{"class"})
)

const tracerName = "github.com/Sternrassler/pure-api-client/pkg/client"

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// Defaults for Config.
const (
	DefaultProtocol = "https"
	DefaultBasePath = "ws/api"
	DefaultTimeout  = 60 * time.Second
)

// Client executes requests against one Pure API instance.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	breaker     *gobreaker.CircuitBreaker
	registry    *registry.Registry
	tracer      trace.Tracer
	baseURL     string
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Protocol is "https" (default) or "http".
	Protocol string

	// Domain is the Pure host, e.g. "experts.umn.edu" (REQUIRED).
	Domain string

	// BasePath is the API path below the host (default "ws/api").
	BasePath string

	// Version selects the schema version. Empty selects the latest known.
	Version string

	// APIKey is sent in the api-key header (REQUIRED).
	APIKey string

	// Headers are added to every request. They cannot override api-key.
	Headers map[string]string

	// Timeout bounds a single attempt (default 60s).
	Timeout time.Duration

	// Registry validates collections. nil uses the embedded schemas.
	Registry *registry.Registry

	// Retry
	Retry RetryConfig

	// Rate Limiting
	RateLimit ratelimit.Config

	// Breaker enables a circuit breaker when non-nil.
	Breaker *BreakerConfig

	// HTTPClient replaces the default transport (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(domain, apiKey string) Config {
	return Config{
		Protocol:  DefaultProtocol,
		Domain:    domain,
		BasePath:  DefaultBasePath,
		APIKey:    apiKey,
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryConfig(),
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// New creates a new Pure API client.
func New(cfg Config) (*Client, error) {
	if cfg.Domain == "" {
		return nil, ErrMissingDomain
	}

	if cfg.APIKey == "" {
		return nil, ErrMissingKey
	}

	if cfg.Protocol == "" {
		cfg.Protocol = DefaultProtocol
	}
	if cfg.Protocol != "http" && cfg.Protocol != "https" {
		return nil, fmt.Errorf("%w (got %q)", ErrInvalidProtocol, cfg.Protocol)
	}

	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	cfg.BasePath = strings.Trim(cfg.BasePath, "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Registry == nil {
		reg, err := registry.New(nil)
		if err != nil {
			return nil, fmt.Errorf("load schema registry: %w", err)
		}
		cfg.Registry = reg
	}

	if cfg.Version == "" {
		cfg.Version = cfg.Registry.LatestVersion()
	}
	if err := cfg.Registry.ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	// Initialize logger
	logger := logging.NewLogger(logging.ComponentClient).With().Str("domain", cfg.Domain).Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		httpClient:  httpClient,
		rateLimiter: ratelimit.NewTracker(cfg.RateLimit, logger),
		registry:    cfg.Registry,
		tracer:      otel.Tracer(tracerName),
		baseURL:     fmt.Sprintf("%s://%s/%s/%s/", cfg.Protocol, cfg.Domain, cfg.BasePath, cfg.Version),
		config:      cfg,
		logger:      logger,
	}

	if cfg.Breaker != nil {
		c.breaker = newBreaker(*cfg.Breaker, cfg.Domain, logger)
	}

	return c, nil
}

// BaseURL returns "<protocol>://<domain>/<path>/<version>/".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Version returns the schema version requests are made against.
func (c *Client) Version() string {
	return c.config.Version
}

// Registry returns the registry used for collection validation.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// RateLimitState returns the server back-pressure currently in effect.
func (c *Client) RateLimitState() ratelimit.State {
	return c.rateLimiter.State()
}

// Get performs a GET request for resourcePath with query parameters.
func (c *Client) Get(ctx context.Context, resourcePath string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, resourcePath, params, nil)
}

// Filter performs a POST request for resourcePath with a JSON payload.
func (c *Client) Filter(ctx context.Context, resourcePath string, payload map[string]any) (*Response, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return c.Do(ctx, http.MethodPost, resourcePath, nil, payload)
}

// Do performs one logical request. The collection named by the first segment
// of resourcePath is validated before any network activity. Failures are
// returned as *HTTPError, *RequestError, *ClientError or a registry error.
func (c *Client) Do(ctx context.Context, method, resourcePath string, query url.Values, payload any) (*Response, error) {
	collection, err := c.registry.CollectionFromPath(resourcePath, c.config.Version)
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, &ClientError{Method: method, ResourcePath: resourcePath, Err: fmt.Errorf("encode payload: %w", err)}
		}
	}

	target := c.baseURL + strings.TrimPrefix(resourcePath, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, "pure "+method+" "+collection,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("pure.collection", collection),
			attribute.String("pure.resource_path", resourcePath),
			attribute.String("pure.version", c.config.Version),
			attribute.String("http.request.method", method),
		))
	defer span.End()

	// Start request timing
	startTime := time.Now()
	defer func() {
		pureRequestDuration.WithLabelValues(collection).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("method", method).
		Str("resource_path", resourcePath).
		Str("collection", collection).
		Msg("Executing Pure API request")

	var resp *Response
	err = retryWithBackoff(ctx, c.config.Retry, c.logger, func() (ErrorClass, error) {
		r, attemptErr := c.attempt(ctx, method, resourcePath, collection, target, body)
		if attemptErr != nil {
			class := c.classifyError(ctx, attemptErr)
			if class != "" {
				pureErrorsTotal.WithLabelValues(string(class)).Inc()
			}
			return class, attemptErr
		}
		resp = r
		return "", nil
	})
	if err != nil {
		err = c.wrapError(method, resourcePath, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

// attempt sends the request once.
func (c *Client) attempt(ctx context.Context, method, resourcePath, collection, target string, body []byte) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &RequestError{Method: method, ResourcePath: resourcePath, Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &ClientError{Method: method, ResourcePath: resourcePath, Err: fmt.Errorf("create request: %w", err)}
	}

	c.setHeaders(req.Header, body != nil)

	send := func() (*Response, error) {
		return c.send(req, resourcePath, collection)
	}
	if c.breaker == nil {
		return send()
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return send()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		pureRequestsTotal.WithLabelValues(collection, "breaker_open").Inc()
		return nil, &ClientError{Method: method, ResourcePath: resourcePath, Err: err}
	}
	resp, _ := out.(*Response)
	return resp, err
}

func (c *Client) send(req *http.Request, resourcePath, collection string) (*Response, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("resource_path", resourcePath).Msg("HTTP request failed")
		pureRequestsTotal.WithLabelValues(collection, "network_error").Inc()
		return nil, &RequestError{Method: req.Method, ResourcePath: resourcePath, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		pureRequestsTotal.WithLabelValues(collection, "network_error").Inc()
		return nil, &RequestError{Method: req.Method, ResourcePath: resourcePath, Err: fmt.Errorf("read body: %w", err)}
	}

	pureRequestsTotal.WithLabelValues(collection, strconv.Itoa(httpResp.StatusCode)).Inc()
	c.rateLimiter.UpdateFromResponse(httpResp.StatusCode, httpResp.Header)

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       data,
		Method:     req.Method,
		URL:        req.URL.String(),
	}

	if httpResp.StatusCode >= 400 {
		class := classifyStatus(httpResp.StatusCode)
		c.logger.Warn().
			Str("resource_path", resourcePath).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(class)).
			Msg("Pure API request error")

		return resp, &HTTPError{
			StatusCode:   httpResp.StatusCode,
			ErrorClass:   class,
			Method:       req.Method,
			ResourcePath: resourcePath,
			Request:      req,
			Response:     httpResp,
			Body:         data,
		}
	}

	return resp, nil
}

func (c *Client) setHeaders(h http.Header, hasBody bool) {
	for name, value := range c.config.Headers {
		h.Set(name, value)
	}
	h.Set("Accept", "application/json")
	h.Set("Accept-Charset", "utf-8")
	h.Set("api-key", c.config.APIKey)
	if hasBody {
		h.Set("Content-Type", "application/json")
	}
}

// classifyError categorizes an attempt failure for retry and metrics.
// Failures caused by the caller's context are never retried.
func (c *Client) classifyError(ctx context.Context, err error) ErrorClass {
	if ctx.Err() != nil {
		return ""
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.ErrorClass
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return ErrorClassNetwork
	}

	return ""
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// wrapError makes sure the error returned from Do belongs to the client's
// error taxonomy.
func (c *Client) wrapError(method, resourcePath string, err error) error {
	var (
		httpErr   *HTTPError
		reqErr    *RequestError
		clientErr *ClientError
	)
	switch {
	case errors.As(err, &httpErr), errors.As(err, &reqErr), errors.As(err, &clientErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &RequestError{Method: method, ResourcePath: resourcePath, Err: err}
	default:
		return &ClientError{Method: method, ResourcePath: resourcePath, Err: err}
	}
}

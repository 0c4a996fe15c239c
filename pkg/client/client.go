// Package client provides the core Microsoft Graph request executor with
// status classification and retry handling.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Graph request operations.
var (
	graphRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_requests_total",
		Help: "Total Graph requests by endpoint and status",
	}, []string{"endpoint", "status"})

	graphRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graph_request_duration_seconds",
		Help:    "Graph request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	graphErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graph_errors_total",
		Help: "Total Graph errors by class",
	}, []string{"class"})
)

// TokenSource supplies the current bearer token for header construction.
// The token is read on every attempt so a retried request picks up a token
// refreshed in the meantime.
type TokenSource interface {
	Token() string
}

// Reauthenticator refreshes the shared token after a 401 response.
type Reauthenticator interface {
	Login(ctx context.Context) error
}

// Client executes single authenticated requests against Microsoft Graph.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	reauth     Reauthenticator
	config     Config
	logger     zerolog.Logger
}

// Config holds the executor configuration.
type Config struct {
	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Timeout bounds each HTTP exchange.
	Timeout time.Duration

	// Retry controls the backoff policy for retryable failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// New creates a request executor. reauth may be nil, in which case 401
// responses are still surfaced as retryable but no re-login runs.
func New(cfg Config, tokens TokenSource, reauth Reauthenticator) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := log.With().Str("component", "graph-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tokens: tokens,
		reauth: reauth,
		config: cfg,
		logger: logger,
	}, nil
}

// Execute sends one authenticated request and returns the raw JSON response
// body (nil for an empty body). Query parameters are expected to be encoded
// into the URL by the caller; form carries the body of a POST and must be
// nil for GET. Retryable failures (401 after re-login, 429, 5xx, connection
// errors) are re-attempted with exponential backoff; any other non-success
// status is fatal and carries the response body as diagnostic text.
func (c *Client) Execute(ctx context.Context, method, rawURL string, form url.Values) (json.RawMessage, error) {
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	endpoint := endpointLabel(rawURL)

	startTime := time.Now()
	defer func() {
		graphRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var payload json.RawMessage
	err := retryWithBackoff(ctx, c.config.Retry, func() error {
		body, attemptErr := c.attempt(ctx, method, rawURL, endpoint, form)
		if attemptErr != nil {
			return attemptErr
		}
		payload = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// attempt performs a single HTTP exchange and classifies the outcome.
func (c *Client) attempt(ctx context.Context, method, rawURL, endpoint string, form url.Values) (json.RawMessage, error) {
	var reqBody io.Reader
	if method == http.MethodPost && form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.tokens.Token())
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing Graph request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		graphErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		graphRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &APIError{Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	graphRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		graphErrorsTotal.WithLabelValues(string(ErrorClassUnauthorized)).Inc()
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("body", string(body)).
			Msg("Unauthorized response, refreshing token")

		if c.reauth != nil {
			if loginErr := c.reauth.Login(ctx); loginErr != nil {
				// Auth failure propagates; the retry wrapper treats it
				// as terminal
				return nil, fmt.Errorf("re-login after 401: %w", loginErr)
			}
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassUnauthorized,
			Body:       string(body),
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		graphErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("retry_after", resp.Header.Get("Retry-After")).
			Msg("Rate limit response")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassRateLimit,
		}

	case resp.StatusCode >= 500:
		graphErrorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Server error response")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassServer,
		}

	case resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted:
		graphErrorsTotal.WithLabelValues(string(ErrorClassClient)).Inc()
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Unexpected status code")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassClient,
			Body:       string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		graphErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{Class: ErrorClassNetwork, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// endpointLabel reduces a request URL to its path for metric labels, so
// cursor query strings do not explode label cardinality.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid"
	}
	return u.Path
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

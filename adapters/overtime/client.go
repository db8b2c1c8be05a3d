package overtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Overtime v2 API root
	DefaultBaseURL = "https://api.overtime.io/overtime-v2"

	userAgent      = "Tyche/1.0 (Overtime Markets)"
	defaultTimeout = 10 * time.Second
	retryDelay     = 2 * time.Second

	defaultRateLimit = 5.0 // requests per second
	defaultBurst     = 5
)

// Client implements the VendorAdapter interface for the Overtime API
type Client struct {
	baseURL    string
	apiKey     string
	quoteKey   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	timeout    time.Duration // 0 keeps the HTTP client's own timeout
}

// Ensure Client implements VendorAdapter
var _ contracts.VendorAdapter = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout. A client passed with
// WithHTTPClient is copied, never modified.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRateLimit sets custom rate limiting
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithQuoteKey sets a separate key for quote requests
func WithQuoteKey(key string) ClientOption {
	return func(c *Client) {
		if key != "" {
			c.quoteKey = key
		}
	}
}

// WithRetries sets how many attempts a GET makes on 5xx/429 (1 = no retry)
func WithRetries(attempts int) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.maxRetries = attempts
		}
	}
}

// NewClient creates a new Overtime API client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		quoteKey: apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: 1,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		httpClient := *c.httpClient
		httpClient.Timeout = c.timeout
		c.httpClient = &httpClient
	}

	return c
}

// FetchMarkets returns the raw markets payload of a network
func (c *Client) FetchMarkets(ctx context.Context, networkID int64) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/networks/%d/markets", c.baseURL, networkID)

	body, err := c.doRequestWithRetry(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch markets failed: %w", err)
	}
	return body, nil
}

// FetchUserHistory returns the raw ticket history of a wallet
func (c *Client) FetchUserHistory(ctx context.Context, networkID int64, address string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/networks/%d/users/%s/history", c.baseURL, networkID, url.PathEscape(address))

	body, err := c.doRequestWithRetry(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch user history failed: %w", err)
	}
	return body, nil
}

// RequestQuote prices a ticket. The vendor reports refusals inside a JSON
// body, so any decodable body is returned whatever the status code.
func (c *Client) RequestQuote(ctx context.Context, networkID int64, quoteReq *models.QuoteRequest) (*models.QuoteResponse, error) {
	endpoint := fmt.Sprintf("%s/networks/%d/quote", c.baseURL, networkID)

	payload, err := json.Marshal(quoteReq)
	if err != nil {
		return nil, fmt.Errorf("encode quote request: %w", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, endpoint, c.quoteKey, payload)
	if err != nil {
		return nil, fmt.Errorf("request quote failed: %w", err)
	}

	var resp models.QuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("request quote failed: %w", &HTTPError{StatusCode: status, Body: body})
		}
		return nil, fmt.Errorf("parse quote response: %w", err)
	}

	return &resp, nil
}

// doRequestWithRetry performs a GET, retrying server errors with backoff
func (c *Client) doRequestWithRetry(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.doRequest(ctx, fullURL)
		if err == nil {
			return body, nil
		}

		lastErr = err

		// Don't retry on client errors (4xx except 429)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests {
				return nil, err
			}
		}
	}

	if c.maxRetries > 1 {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, lastErr
}

// doRequest performs a single GET and maps non-2xx to *HTTPError
func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	status, body, err := c.do(ctx, http.MethodGet, fullURL, c.apiKey, nil)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		return nil, &HTTPError{StatusCode: status, Body: body}
	}

	return body, nil
}

func (c *Client) do(ctx context.Context, method, fullURL, key string, payload []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("x-api-key", key)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// HTTPError is a non-2xx vendor response
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, string(e.Body))
}

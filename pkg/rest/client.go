package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go"

	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/ratelimit"
)

// HTTPClient executes HTTP requests with coarse pacing and transport-level
// retry. Endpoint-category admission and the 429/nonce policy live in the
// Pipeline; this client only smooths the overall request rate and retries
// transport failures and 5xx responses.
type HTTPClient interface {
	// Do executes an HTTP request.
	Do(ctx context.Context, req *http.Request) (*http.Response, error)

	// Get is a convenience method for making GET requests
	Get(ctx context.Context, url string) (*http.Response, error)

	// Post is a convenience method for making POST requests with JSON body
	Post(ctx context.Context, url string, body interface{}) (*http.Response, error)

	// SetRateLimit updates the pacing limiter configuration
	SetRateLimit(limit ratelimit.Rate) error
}

// ClientConfig holds configuration for the HTTP client
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit ratelimit.Rate

	MaxRetries uint
	RetryDelay time.Duration

	// DumpBodies logs request/response bodies at debug level, capped at
	// MaxBodyLogSize bytes.
	DumpBodies     bool
	MaxBodyLogSize int

	Logger logging.Logger

	// Transport overrides the underlying round tripper, used in tests.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 30 * time.Second,
		RateLimit: ratelimit.Rate{
			Limit:    10,
			Interval: time.Second,
		},
		MaxRetries:     3,
		RetryDelay:     time.Second,
		MaxBodyLogSize: 4096,
		Logger:         logging.NewLogger(),
	}
}

// client implements the HTTPClient interface
type client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    ratelimit.RateLimiter
	logger     logging.Logger
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config *ClientConfig) HTTPClient {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.NewLogger()
	}

	return &client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		limiter: ratelimit.NewTokenBucketLimiter(config.RateLimit),
		logger:  config.Logger,
	}
}

// Do implements HTTPClient interface
func (c *client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait error: %w", err)
	}

	// Buffer the body once so retries can replay it.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading request body: %w", err)
		}
		req.Body.Close()
	}

	if c.config.DumpBodies {
		c.dump("request", req.URL.String(), body)
	}

	err := retry.Do(
		func() error {
			reqClone := req.Clone(ctx)
			if body != nil {
				reqClone.Body = io.NopCloser(bytes.NewReader(body))
			}

			var err error
			resp, err = c.httpClient.Do(reqClone)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				return fmt.Errorf("http request error: %w", err)
			}

			// 5xx is worth retrying here; 429 carries a server hint and is
			// the pipeline's business, so it passes through untouched.
			if resp.StatusCode >= 500 {
				drainBody(resp)
				return &RequestError{Status: resp.StatusCode}
			}

			return nil
		},
		retry.Attempts(c.config.MaxRetries),
		retry.Delay(c.config.RetryDelay),
		retry.Context(ctx),
		// Keep the last classified error unwrappable for callers.
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying request",
				logging.Int("attempt", int(n)),
				logging.String("url", req.URL.String()),
				logging.Error(err),
			)
		}),
	)

	if err != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", c.config.MaxRetries, err)
	}

	return resp, nil
}

// Get implements HTTPClient interface
func (c *client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	return c.Do(ctx, req)
}

// Post implements HTTPClient interface
func (c *client) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.Do(ctx, req)
}

// SetRateLimit implements HTTPClient interface
func (c *client) SetRateLimit(limit ratelimit.Rate) error {
	return c.limiter.SetLimit(limit)
}

func (c *client) dump(direction, url string, body []byte) {
	max := c.config.MaxBodyLogSize
	if max <= 0 {
		max = 4096
	}
	if len(body) > max {
		body = body[:max]
	}
	c.logger.Debug("http "+direction,
		logging.String("url", url),
		logging.String("body", string(body)),
	)
}

func drainBody(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
	}
}

// DecodeResponse reads a JSON response into out and converts non-2xx
// statuses into *RequestError, parsing the Retry-After header on 429.
func DecodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &RequestError{
			Status:  resp.StatusCode,
			Message: string(bytes.TrimSpace(raw)),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
				reqErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return reqErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

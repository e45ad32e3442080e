package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

// HTTPClientConfig holds configuration for the retry HTTP client
type HTTPClientConfig struct {
	Timeout           time.Duration // Request timeout
	MaxRetries        int           // Maximum number of retries
	RetryWaitMin      time.Duration // Minimum wait time between retries
	RetryWaitMax      time.Duration // Maximum wait time between retries
	RetryableStatus   []int         // HTTP status codes that should trigger retries
	RequestsPerSecond float64       // Client side rate limit, 0 disables it
}

// HTTPClientConfigFromConfig creates an HTTPClientConfig from the application config
func HTTPClientConfigFromConfig(cfg *config.Config) HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:           30 * time.Second,
		MaxRetries:        cfg.Download.RetryAttempts,
		RetryWaitMin:      500 * time.Millisecond,
		RetryWaitMax:      5 * time.Second,
		RetryableStatus:   []int{429, 500, 502, 503, 504},
		RequestsPerSecond: cfg.Zoom.RequestsPerSecond,
	}
}

// RetryHTTPClient is an HTTP client with retry logic, exponential backoff and
// a token bucket limiting the request rate
type RetryHTTPClient struct {
	client  *http.Client
	config  HTTPClientConfig
	limiter *rate.Limiter
}

// NewRetryHTTPClient creates a new HTTP client with retry logic
func NewRetryHTTPClient(config HTTPClientConfig) *RetryHTTPClient {
	if config.RetryWaitMin == 0 {
		config.RetryWaitMin = 500 * time.Millisecond
	}
	if config.RetryWaitMax == 0 {
		config.RetryWaitMax = 5 * time.Second
	}
	if len(config.RetryableStatus) == 0 {
		config.RetryableStatus = []int{429, 500, 502, 503, 504}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &RetryHTTPClient{
		client:  &http.Client{Timeout: config.Timeout},
		config:  config,
		limiter: limiter,
	}
}

// ZoomAPIError represents a Zoom API error response
type ZoomAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *ZoomAPIError) Error() string {
	return fmt.Sprintf("zoom API error %d: %s", e.Code, e.Message)
}

// HTTPError represents a general HTTP error
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Status)
}

// Do executes an HTTP request with retry logic. Requests must carry a
// replayable body (nil or set via http.NewRequest with a bytes reader).
func (c *RetryHTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(ctx, attempt, 0); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()

		if c.shouldRetry(resp.StatusCode) && attempt < c.config.MaxRetries {
			logging.DebugWithContext(ctx, "Zoom API returned %d, retrying (attempt %d)", resp.StatusCode, attempt+1)
			if err := c.waitForRetry(ctx, attempt, parseRetryAfter(resp)); err != nil {
				return nil, err
			}
			continue
		}

		return nil, responseError(resp, body)
	}
}

func responseError(resp *http.Response, body []byte) error {
	var cause error = &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	if zoomErr := parseZoomError(resp.StatusCode, body); zoomErr != nil {
		cause = zoomErr
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &errs.AuthError{Op: "zoom api", Message: "zoom rejected the access token", Err: cause}
	}
	return cause
}

func (c *RetryHTTPClient) shouldRetry(statusCode int) bool {
	for _, retryableStatus := range c.config.RetryableStatus {
		if statusCode == retryableStatus {
			return true
		}
	}
	return false
}

// parseZoomError attempts to parse a Zoom API error response
func parseZoomError(statusCode int, body []byte) *ZoomAPIError {
	if len(body) == 0 {
		return nil
	}

	var zoomErr ZoomAPIError
	if err := json.Unmarshal(body, &zoomErr); err != nil {
		return nil
	}
	if zoomErr.Code == 0 && zoomErr.Message == "" {
		return nil
	}

	zoomErr.Status = statusCode
	return &zoomErr
}

// parseRetryAfter parses the Retry-After header and returns the wait duration
func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if duration := time.Until(t); duration > 0 {
			return duration
		}
	}

	return 0
}

// backoff returns the wait before the next attempt, honoring Retry-After
func (c *RetryHTTPClient) backoff(attempt int, retryAfter time.Duration) time.Duration {
	waitTime := retryAfter
	if waitTime <= 0 {
		base := float64(c.config.RetryWaitMin)
		exponential := base * math.Pow(2, float64(attempt))
		jitter := exponential * 0.25 * (rand.Float64()*2 - 1)
		waitTime = time.Duration(exponential + jitter)
		if waitTime < c.config.RetryWaitMin {
			waitTime = c.config.RetryWaitMin
		}
	}
	if waitTime > c.config.RetryWaitMax {
		waitTime = c.config.RetryWaitMax
	}
	return waitTime
}

func (c *RetryHTTPClient) waitForRetry(ctx context.Context, attempt int, retryAfter time.Duration) error {
	timer := time.NewTimer(c.backoff(attempt, retryAfter))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthenticatedRetryClient combines retry logic with authentication
type AuthenticatedRetryClient struct {
	retryClient *RetryHTTPClient
	auth        Authenticator
}

// NewAuthenticatedRetryClient creates a client with both retry logic and authentication
func NewAuthenticatedRetryClient(retryClient *RetryHTTPClient, auth Authenticator) *AuthenticatedRetryClient {
	return &AuthenticatedRetryClient{
		retryClient: retryClient,
		auth:        auth,
	}
}

// Do executes an HTTP request with both authentication and retry logic
func (c *AuthenticatedRetryClient) Do(req *http.Request) (*http.Response, error) {
	token, err := c.auth.GetAccessToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to get access token for request: %w", err)
	}

	req.Header.Set("Authorization", token.Header())
	return c.retryClient.Do(req)
}

// IsRetryableError checks if an API error is worth retrying on a later run
func IsRetryableError(err error) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *ZoomAPIError:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	case *HTTPError:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

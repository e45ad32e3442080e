package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrorType represents different categories of errors for retry logic
type ErrorType string

const (
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeClient    ErrorType = "client"
	ErrorTypeCanceled  ErrorType = "canceled"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// StatusError is returned when the server answers with an unexpected status
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// RetryConfig holds configuration for retry strategies
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// JitterPercent spreads each delay by up to this percentage (0-100)
	JitterPercent int

	RetryableErrors []ErrorType

	// RateLimitDelay overrides the backoff after a 429
	RateLimitDelay time.Duration
}

// DefaultRetryConfig returns the retry configuration used for recording downloads
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 25,
		RetryableErrors: []ErrorType{
			ErrorTypeNetwork,
			ErrorTypeTimeout,
			ErrorTypeServer,
			ErrorTypeRateLimit,
		},
		RateLimitDelay: 30 * time.Second,
	}
}

// ValidateRetryConfig validates a retry configuration
func ValidateRetryConfig(config RetryConfig) error {
	if config.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if config.BaseDelay < 0 {
		return fmt.Errorf("base_delay cannot be negative")
	}
	if config.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0")
	}
	if config.MaxDelay > 0 && config.MaxDelay < config.BaseDelay {
		return fmt.Errorf("max_delay cannot be less than base_delay")
	}
	if config.JitterPercent < 0 || config.JitterPercent > 100 {
		return fmt.Errorf("jitter_percent must be between 0 and 100")
	}
	return nil
}

// RetryStrategy decides whether and when to retry
type RetryStrategy interface {
	// CalculateDelay returns the delay before the next attempt and whether to retry.
	// attempt is the number of attempts made so far.
	CalculateDelay(errorType ErrorType, attempt int) (time.Duration, bool)
	IsRetryable(errorType ErrorType) bool
}

type retryStrategy struct {
	config RetryConfig
	random *rand.Rand
	mu     sync.Mutex
}

// NewRetryStrategy creates a backoff strategy with jitter
func NewRetryStrategy(config RetryConfig) RetryStrategy {
	return &retryStrategy{
		config: config,
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (rs *retryStrategy) CalculateDelay(errorType ErrorType, attempt int) (time.Duration, bool) {
	if attempt >= rs.config.MaxAttempts {
		return 0, false
	}
	if !rs.IsRetryable(errorType) {
		return 0, false
	}

	var delay time.Duration
	if errorType == ErrorTypeRateLimit && rs.config.RateLimitDelay > 0 {
		delay = rs.config.RateLimitDelay
	} else {
		delay = rs.backoff(attempt)
	}

	return rs.applyJitter(delay), true
}

// backoff returns base_delay * multiplier^(attempt-1), capped at max_delay
func (rs *retryStrategy) backoff(attempt int) time.Duration {
	if rs.config.BaseDelay == 0 {
		return 0
	}

	multiplier := rs.config.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	exponent := attempt - 1
	if exponent < 0 {
		exponent = 0
	}
	delay := float64(rs.config.BaseDelay) * math.Pow(multiplier, float64(exponent))

	if rs.config.MaxDelay > 0 && delay > float64(rs.config.MaxDelay) {
		delay = float64(rs.config.MaxDelay)
	}
	return time.Duration(delay)
}

func (rs *retryStrategy) applyJitter(delay time.Duration) time.Duration {
	if rs.config.JitterPercent <= 0 || delay <= 0 {
		return delay
	}

	rs.mu.Lock()
	r := rs.random.Float64()
	rs.mu.Unlock()

	jitterRange := float64(delay) * float64(rs.config.JitterPercent) / 100.0
	jittered := float64(delay) + (r-0.5)*2*jitterRange
	if jittered < 0 {
		jittered = float64(delay) * 0.1
	}
	return time.Duration(jittered)
}

func (rs *retryStrategy) IsRetryable(errorType ErrorType) bool {
	for _, retryable := range rs.config.RetryableErrors {
		if retryable == errorType {
			return true
		}
	}
	return false
}

// ClassifyError classifies an error into an ErrorType for retry logic
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyHTTPError(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "connection reset"), strings.Contains(errMsg, "broken pipe"),
		strings.Contains(errMsg, "unexpected eof"), strings.Contains(errMsg, "network"):
		return ErrorTypeNetwork
	case strings.Contains(errMsg, "timeout"):
		return ErrorTypeTimeout
	}

	return ErrorTypeUnknown
}

// ClassifyHTTPError classifies HTTP status codes into error types
func ClassifyHTTPError(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode == http.StatusRequestTimeout:
		return ErrorTypeTimeout
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode >= 400 && statusCode < 500:
		return ErrorTypeClient
	case statusCode >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeUnknown
	}
}

// RetryMetrics describes the last execution of a Retrier
type RetryMetrics struct {
	TotalAttempts  int
	TotalDuration  time.Duration
	LastError      error
	LastErrorType  ErrorType
	SuccessAttempt int
}

// Retrier runs an operation until it succeeds or the strategy gives up
type Retrier struct {
	strategy RetryStrategy
	metrics  RetryMetrics
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier for the given strategy
func NewRetrier(strategy RetryStrategy) *Retrier {
	return &Retrier{
		strategy: strategy,
		sleep:    sleepContext,
	}
}

// Execute runs operation. The returned error wraps the last failure.
func (r *Retrier) Execute(ctx context.Context, operation func(attempt int) error) error {
	r.metrics = RetryMetrics{}
	start := time.Now()
	defer func() {
		r.metrics.TotalDuration = time.Since(start)
	}()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation(attempt)
		r.metrics.TotalAttempts = attempt
		if err == nil {
			r.metrics.SuccessAttempt = attempt
			return nil
		}

		errorType := ClassifyError(err)
		r.metrics.LastError = err
		r.metrics.LastErrorType = errorType

		delay, shouldRetry := r.strategy.CalculateDelay(errorType, attempt)
		if !shouldRetry {
			if attempt == 1 {
				return err
			}
			return fmt.Errorf("failed after %d attempts: %w", attempt, err)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Metrics returns metrics about the last execution
func (r *Retrier) Metrics() RetryMetrics {
	return r.metrics
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

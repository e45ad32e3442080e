package zoom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/errs"
)

func fastRetryConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
}

func TestRetryHTTPClient(t *testing.T) {
	tests := []struct {
		name          string
		statuses      []int
		body          string
		expectedCalls int32
		expectedError bool
	}{
		{"success first try", []int{200}, `{}`, 1, false},
		{"recovers from 503", []int{503, 503, 200}, `{}`, 3, false},
		{"recovers from 429", []int{429, 200}, `{}`, 2, false},
		{"gives up after max retries", []int{500, 500, 500}, `{}`, 3, true},
		{"no retry on 404", []int{404}, `{"code": 3301, "message": "This recording does not exist."}`, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				status := tt.statuses[len(tt.statuses)-1]
				if int(n) <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				w.WriteHeader(status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewRetryHTTPClient(fastRetryConfig())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			resp, err := client.Do(req)

			if tt.expectedError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
			} else {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				resp.Body.Close()
			}

			if got := atomic.LoadInt32(&calls); got != tt.expectedCalls {
				t.Errorf("Expected %d calls, got %d", tt.expectedCalls, got)
			}
		})
	}
}

func TestZoomAPIErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code": 1001, "message": "User does not exist: nobody"}`))
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := NewRetryHTTPClient(fastRetryConfig()).Do(req)

	var zoomErr *ZoomAPIError
	if !errors.As(err, &zoomErr) {
		t.Fatalf("Expected *ZoomAPIError, got %T: %v", err, err)
	}
	if zoomErr.Code != 1001 {
		t.Errorf("Expected code 1001, got %d", zoomErr.Code)
	}
	if zoomErr.Status != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", zoomErr.Status)
	}
	if IsRetryableError(zoomErr) {
		t.Error("Expected 404 not to be retryable")
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code": 124, "message": "Invalid access token."}`))
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := NewRetryHTTPClient(fastRetryConfig()).Do(req)
	if !errs.IsAuth(err) {
		t.Fatalf("Expected AuthError, got %v", err)
	}

	var zoomErr *ZoomAPIError
	if !errors.As(err, &zoomErr) {
		t.Error("Expected the zoom error to stay reachable")
	}
}

func TestRetryAfterIsCapped(t *testing.T) {
	client := NewRetryHTTPClient(fastRetryConfig())

	tests := []struct {
		name       string
		attempt    int
		retryAfter time.Duration
		max        time.Duration
	}{
		{"retry after capped", 0, time.Hour, 5 * time.Millisecond},
		{"backoff capped", 10, 0, 5 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.backoff(tt.attempt, tt.retryAfter); got > tt.max {
				t.Errorf("Expected wait <= %v, got %v", tt.max, got)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if got := parseRetryAfter(resp); got != 0 {
		t.Errorf("Expected 0 without header, got %v", got)
	}

	resp.Header.Set("Retry-After", "7")
	if got := parseRetryAfter(resp); got != 7*time.Second {
		t.Errorf("Expected 7s, got %v", got)
	}

	resp.Header.Set("Retry-After", "soon")
	if got := parseRetryAfter(resp); got != 0 {
		t.Errorf("Expected 0 for garbage, got %v", got)
	}
}

func TestRateLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := fastRetryConfig()
	config.RequestsPerSecond = 20
	client := NewRetryHTTPClient(config)

	start := time.Now()
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	// burst of 1 at 20 rps spaces three requests by at least ~100ms
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("Expected rate limiting, finished in %v", elapsed)
	}
}

func TestRetryHonorsCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	config := fastRetryConfig()
	config.MaxRetries = 5
	config.RetryWaitMin = time.Second
	config.RetryWaitMax = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	_, err := NewRetryHTTPClient(config).Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

type staticAuth struct {
	token *AccessToken
	err   error
}

func (s *staticAuth) GetAccessToken(context.Context) (*AccessToken, error) {
	return s.token, s.err
}

func TestAuthenticatedRetryClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("Expected Bearer abc, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewAuthenticatedRetryClient(
		NewRetryHTTPClient(fastRetryConfig()),
		&staticAuth{token: &AccessToken{AccessToken: "abc", TokenType: "Bearer"}},
	)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()

	failing := NewAuthenticatedRetryClient(
		NewRetryHTTPClient(fastRetryConfig()),
		&staticAuth{err: &errs.AuthError{Message: "no token"}},
	)
	req, _ = http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := failing.Do(req); !errs.IsAuth(err) {
		t.Errorf("Expected AuthError, got %v", err)
	}
}

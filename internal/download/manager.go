// Package download fetches recording files over HTTP with resume and retry support
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

// PartialSuffix is appended to the destination while a download is in flight
const PartialSuffix = ".part"

// Config holds configuration for the download manager
type Config struct {
	ChunkSize int           // Size of each read in bytes
	Timeout   time.Duration // Time allowed for the server to send response headers
	UserAgent string
	Retry     RetryConfig
}

// Request describes one file to fetch
type Request struct {
	URL          string
	Destination  string
	Headers      map[string]string
	ExpectedSize int64
	// Progress, when set, is called with the bytes written so far
	Progress func(written, total int64)
}

// Result describes a finished download
type Result struct {
	BytesDownloaded int64
	Duration        time.Duration
	Resumed         bool
	Attempts        int
}

// Manager downloads files to disk
type Manager interface {
	Download(ctx context.Context, req Request) (*Result, error)
}

type manager struct {
	config     Config
	httpClient *http.Client
	strategy   RetryStrategy
}

// NewManager creates a download manager with the given configuration
func NewManager(config Config) Manager {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 256 * 1024
	}
	if config.UserAgent == "" {
		config.UserAgent = "zoom-to-youtube/1.0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if err := ValidateRetryConfig(config.Retry); err != nil {
		if config.Retry.MaxAttempts > 0 {
			logging.Warn("Invalid download retry settings (%v), using defaults", err)
		}
		config.Retry = DefaultRetryConfig()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.Timeout

	httpClient := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &manager{
		config:     config,
		httpClient: httpClient,
		strategy:   NewRetryStrategy(config.Retry),
	}
}

// Download fetches req.URL into req.Destination. Data is written to a
// ".part" file that later attempts resume with a Range request; the final
// path only appears once the transfer is complete.
func (m *manager) Download(ctx context.Context, req Request) (*Result, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("download url cannot be empty")
	}
	if req.Destination == "" {
		return nil, fmt.Errorf("download destination cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(req.Destination), 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	start := time.Now()
	result := &Result{}
	retrier := NewRetrier(m.strategy)

	err := retrier.Execute(ctx, func(attempt int) error {
		if attempt > 1 {
			logging.DebugWithContext(ctx, "Retrying download of %s (attempt %d)", filepath.Base(req.Destination), attempt)
		}

		written, resumed, err := m.attempt(ctx, req)
		if err != nil {
			return err
		}
		result.BytesDownloaded = written
		result.Resumed = result.Resumed || resumed
		return nil
	})
	metrics := retrier.Metrics()
	result.Attempts = metrics.TotalAttempts
	if err != nil {
		logging.DebugWithContext(ctx, "Download of %s stopped after %d attempt(s) in %s, last error type %s",
			filepath.Base(req.Destination), metrics.TotalAttempts, metrics.TotalDuration.Round(time.Millisecond), metrics.LastErrorType)
		return result, err
	}

	if err := os.Rename(req.Destination+PartialSuffix, req.Destination); err != nil {
		return result, fmt.Errorf("failed to move download into place: %w", err)
	}

	result.Duration = time.Since(start)
	logging.LogPerformance(logging.PerformanceMetrics{
		Operation:      "download",
		Duration:       result.Duration,
		BytesProcessed: result.BytesDownloaded,
		Success:        true,
		Metadata: map[string]interface{}{
			"file":     filepath.Base(req.Destination),
			"size":     humanize.Bytes(uint64(result.BytesDownloaded)),
			"attempts": result.Attempts,
			"resumed":  result.Resumed,
		},
	})

	return result, nil
}

// attempt performs a single request, appending to any partial file
func (m *manager) attempt(ctx context.Context, req Request) (int64, bool, error) {
	partial := req.Destination + PartialSuffix

	var currentSize int64
	if info, err := os.Stat(partial); err == nil {
		currentSize = info.Size()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("User-Agent", m.config.UserAgent)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if currentSize > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", currentSize))
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return 0, false, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && currentSize > 0:
		// The partial file already holds the whole body
		return currentSize, true, nil
	case resp.StatusCode == http.StatusPartialContent && currentSize > 0:
	case resp.StatusCode == http.StatusOK:
		// Server ignored the range, start over
		currentSize = 0
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, false, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: req.URL}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if currentSize > 0 {
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(partial, flags, 0644)
	if err != nil {
		return 0, false, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	total := req.ExpectedSize
	if total <= 0 && resp.ContentLength > 0 {
		total = currentSize + resp.ContentLength
	}

	written := currentSize
	buffer := make([]byte, m.config.ChunkSize)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, err := file.Write(buffer[:n]); err != nil {
				return written, false, fmt.Errorf("failed to write to file: %w", err)
			}
			written += int64(n)
			if req.Progress != nil {
				req.Progress(written, total)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return written, false, fmt.Errorf("failed to read response body: %w", readErr)
		}
	}

	if err := file.Sync(); err != nil {
		return written, false, fmt.Errorf("failed to sync file: %w", err)
	}

	if resp.ContentLength > 0 && written-currentSize < resp.ContentLength {
		return written, false, fmt.Errorf("unexpected EOF: got %s of %s",
			humanize.Bytes(uint64(written)), humanize.Bytes(uint64(currentSize+resp.ContentLength)))
	}

	return written, currentSize > 0, nil
}

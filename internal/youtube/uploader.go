package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/oauth2"

	"github.com/curtbushko/zoom-to-youtube/internal/config"
	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/progress"
)

const (
	// DefaultChunkSize is the size of each PUT in a resumable session
	DefaultChunkSize = 4 * 1024 * 1024
	// MaxTitleLength is the longest title YouTube accepts, in characters
	MaxTitleLength = 100
	// WatchURLPrefix prefixes the id of an uploaded video
	WatchURLPrefix = "https://youtu.be/"

	// statusResumeIncomplete is returned for every accepted chunk but the last
	statusResumeIncomplete = 308
)

// Metadata describes the uploaded video
type Metadata struct {
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
}

// APIError is an error response from the YouTube Data API
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube API error %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube API error %d: %s", e.StatusCode, e.Message)
}

// Uploader sends files to YouTube with the resumable upload protocol
type Uploader struct {
	httpClient *http.Client
	uploadURL  string
	chunkSize  int64
	maxRetries int
	retryWait  time.Duration
}

// NewUploader creates an uploader authorized by tokens
func NewUploader(cfg config.YouTubeConfig, tokens oauth2.TokenSource) *Uploader {
	chunkSize := int64(cfg.ChunkSizeMB) * 1024 * 1024
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	}

	return &Uploader{
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: tokens, Base: http.DefaultTransport},
			Timeout:   10 * time.Minute,
		},
		uploadURL:  uploadURL,
		chunkSize:  chunkSize,
		maxRetries: 3,
		retryWait:  2 * time.Second,
	}
}

// Upload sends the file at path and returns the watch URL of the new video
func (u *Uploader) Upload(ctx context.Context, path string, meta Metadata) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", &errs.TransferError{Op: "upload", Message: "failed to open video", Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", &errs.TransferError{Op: "upload", Message: "failed to stat video", Err: err}
	}
	if info.Size() == 0 {
		return "", &errs.ValidationError{Op: "upload", Message: fmt.Sprintf("%s is empty", filepath.Base(path))}
	}

	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	meta.Title = TruncateTitle(meta.Title)

	logging.InfoWithContext(ctx, "Uploading %s (%s) as %q", filepath.Base(path), humanize.Bytes(uint64(info.Size())), meta.Title)
	start := time.Now()

	sessionURL, err := u.startSession(ctx, info.Size(), meta)
	if err != nil {
		return "", uploadError(err)
	}

	tracker := progress.NewTracker(ctx, "Upload "+filepath.Base(path), progress.DefaultStep)
	videoID, err := u.sendFile(ctx, sessionURL, file, info.Size(), tracker)
	if err != nil {
		return "", uploadError(err)
	}
	tracker.Finish(info.Size())

	logging.LogPerformance(logging.PerformanceMetrics{
		Operation:      "upload",
		Duration:       time.Since(start),
		BytesProcessed: info.Size(),
		Success:        true,
		Metadata: map[string]interface{}{
			"video_id": videoID,
			"size":     humanize.Bytes(uint64(info.Size())),
		},
	})

	return WatchURLPrefix + videoID, nil
}

// TruncateTitle shortens a title to MaxTitleLength characters and drops the
// angle brackets YouTube rejects
func TruncateTitle(title string) string {
	title = strings.NewReplacer("<", "", ">", "").Replace(title)
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	return string([]rune(title)[:MaxTitleLength])
}

type videoResource struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// startSession creates a resumable session and returns its URL
func (u *Uploader) startSession(ctx context.Context, size int64, meta Metadata) (string, error) {
	var resource videoResource
	resource.Snippet.Title = meta.Title
	resource.Snippet.Description = meta.Description
	resource.Snippet.Tags = meta.Tags
	resource.Snippet.CategoryID = meta.CategoryID
	resource.Status.PrivacyStatus = meta.PrivacyStatus
	if resource.Status.PrivacyStatus == "" {
		resource.Status.PrivacyStatus = "unlisted"
	}

	body, err := json.Marshal(resource)
	if err != nil {
		return "", fmt.Errorf("failed to encode video metadata: %w", err)
	}

	query := url.Values{}
	query.Set("uploadType", "resumable")
	query.Set("part", "snippet,status")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL+"?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", "video/*")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to start upload session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("upload session response has no Location header")
	}
	return location, nil
}

// sendFile uploads the file in chunks, re-synchronizing the offset with the
// server after a server-side failure
func (u *Uploader) sendFile(ctx context.Context, sessionURL string, file io.ReaderAt, size int64, tracker *progress.Tracker) (string, error) {
	var offset int64
	retries := 0
	buffer := make([]byte, u.chunkSize)

	for {
		n, err := file.ReadAt(buffer[:min(u.chunkSize, size-offset)], offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read video at offset %d: %w", offset, err)
		}

		contentRange := fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(n)-1, size)
		if n == 0 {
			// every byte is stored, ask the session to finish
			contentRange = fmt.Sprintf("bytes */%d", size)
		}
		videoID, next, err := u.put(ctx, sessionURL, buffer[:n], contentRange)
		if err == nil {
			if videoID != "" {
				return videoID, nil
			}
			if n == 0 && next >= size {
				return "", fmt.Errorf("upload session holds all %d bytes but did not finish", size)
			}
			offset = next
			retries = 0
			tracker.Update(offset, size)
			continue
		}

		if !retryableUploadError(err) || retries >= u.maxRetries {
			return "", err
		}
		retries++
		logging.WarnWithContext(ctx, "Upload chunk failed (%v), resuming (attempt %d/%d)", err, retries, u.maxRetries)

		if err := sleepContext(ctx, u.retryWait*time.Duration(retries)); err != nil {
			return "", err
		}

		videoID, next, err = u.put(ctx, sessionURL, nil, fmt.Sprintf("bytes */%d", size))
		if err != nil {
			if !retryableUploadError(err) {
				return "", err
			}
			continue
		}
		if videoID != "" {
			return videoID, nil
		}
		offset = next
	}
}

// put sends one chunk, or a status query when chunk is nil. It returns the
// video id once the upload is complete, otherwise the next offset.
func (u *Uploader) put(ctx context.Context, sessionURL string, chunk []byte, contentRange string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, bytes.NewReader(chunk))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create chunk request: %w", err)
	}
	req.ContentLength = int64(len(chunk))
	req.Header.Set("Content-Range", contentRange)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("chunk request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var video struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
			return "", 0, fmt.Errorf("failed to decode upload response: %w", err)
		}
		if video.ID == "" {
			return "", 0, fmt.Errorf("upload response has no video id")
		}
		return video.ID, 0, nil
	case statusResumeIncomplete:
		io.Copy(io.Discard, resp.Body)
		return "", nextOffset(resp.Header.Get("Range")), nil
	default:
		return "", 0, parseAPIError(resp)
	}
}

// nextOffset parses a "bytes=0-N" Range header. No header means nothing was stored.
func nextOffset(rangeHeader string) int64 {
	_, last, found := strings.Cut(rangeHeader, "-")
	if !found {
		return 0
	}
	end, err := strconv.ParseInt(strings.TrimSpace(last), 10, 64)
	if err != nil {
		return 0
	}
	return end + 1
}

func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Message: resp.Status}
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
		if len(payload.Error.Errors) > 0 {
			apiErr.Reason = payload.Error.Errors[0].Reason
		}
	}
	return apiErr
}

func retryableUploadError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	if errs.IsAuth(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// network failure talking to the session
	return true
}

// uploadError maps an upload failure onto the pipeline's error kinds
func uploadError(err error) error {
	if errs.IsAuth(err) || errs.IsValidation(err) || errs.IsTransfer(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized {
			return &errs.AuthError{Op: "upload", Message: "youtube rejected the credentials", Err: err}
		}
		return &errs.TransferError{Op: "upload", Message: "upload failed", StatusCode: apiErr.StatusCode, Err: err}
	}
	return &errs.TransferError{Op: "upload", Message: "upload failed", Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

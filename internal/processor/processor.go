// Package processor drives recordings through download, upload and notification
// using the ledger to make every step idempotent and resumable
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/filename"
	"github.com/curtbushko/zoom-to-youtube/internal/ledger"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/source"
	"github.com/curtbushko/zoom-to-youtube/internal/youtube"
)

// Alert operations reported in "resolved" messages
const (
	OpDownload          = "Download"
	OpDownloadRetry     = "Download (retry)"
	OpUpload            = "Upload"
	OpNotify            = "Discord notification"
	OpUploadRetry       = "Upload (retry)"
	OpNotifyRetry       = "Discord notification (retry)"
	notificationFailure = "Discord notification failed"
)

// Downloader fetches a stream to a local path
type Downloader interface {
	Download(ctx context.Context, ref, dest string) error
}

// Uploader publishes a local artifact and returns its URL
type Uploader interface {
	Upload(ctx context.Context, path string, meta youtube.Metadata) (string, error)
}

// Notifier announces a published URL
type Notifier interface {
	Notify(ctx context.Context, url string) (bool, error)
}

// Alerter sends failure and recovery alerts
type Alerter interface {
	Alert(ctx context.Context, msg, details string) (bool, error)
}

// Collaborators groups the external services the processor calls
type Collaborators struct {
	Downloader Downloader
	Uploader   Uploader
	Notifier   Notifier
	Alerter    Alerter
}

// Config holds processing settings
type Config struct {
	DownloadDir           string
	MinVideoLengthSeconds int
	Description           string
	Tags                  []string
	CategoryID            string
	PrivacyStatus         string
	DryRun                bool
}

// Outcome is how a single ProcessItem call ended
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeComplete  Outcome = "already_complete"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDryRun    Outcome = "dry_run"
)

// ItemError is a step failure that was recorded in the ledger
type ItemError struct {
	ItemID  string
	Message string
	Err     error
}

func (e *ItemError) Error() string { return e.Message }
func (e *ItemError) Unwrap() error { return e.Err }

// Processor runs the per-item state machine
type Processor struct {
	ledger *ledger.Ledger
	namer  filename.FolderNamer
	collab Collaborators
	config Config
}

// NewProcessor creates a processor
func NewProcessor(l *ledger.Ledger, namer filename.FolderNamer, collab Collaborators, config Config) *Processor {
	return &Processor{
		ledger: l,
		namer:  namer,
		collab: collab,
		config: config,
	}
}

// DryRun reports whether side effects are suppressed
func (p *Processor) DryRun() bool {
	return p.config.DryRun
}

// ProcessItem advances one item as far as it can go. Step failures are
// recorded in the ledger and returned as *ItemError; they never leave the
// ledger in a state that a later call cannot resume from.
func (p *Processor) ProcessItem(ctx context.Context, item source.Item) (Outcome, error) {
	if item.ID == "" {
		logging.WarnWithContext(ctx, "Skipping recording without an id: %s", item.DisplayTitle())
		return OutcomeRejected, &errs.ValidationError{Op: "process", Message: "recording has no id"}
	}

	ctx = logging.WithItemID(ctx, item.ID)
	title := item.DisplayTitle()

	record, err := p.ledger.Get(ctx, item.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to read ledger record %s: %w", item.ID, err)
	}
	if record != nil && record.IsComplete() {
		logging.DebugWithContext(ctx, "Already processed: %s", title)
		return OutcomeComplete, nil
	}
	if record != nil && record.Status == ledger.StatusSkipped {
		logging.DebugWithContext(ctx, "Previously skipped: %s (%s)", title, record.ErrorMessage)
		return OutcomeSkipped, nil
	}
	if record == nil {
		record = &ledger.Record{ItemID: item.ID, Title: title}
	}

	logging.InfoWithContext(ctx, "Processing: %s (%s...)", title, shortID(item.ID))

	// Locate media
	if len(item.Streams) == 0 {
		return OutcomeFailed, p.fail(ctx, item.ID, title, "No recording files found",
			&errs.NotFoundError{Op: "locate media", Message: "no recording files"})
	}
	stream, ok := source.BestStream(item.Streams)
	if !ok {
		for _, v := range source.VideoStreams(item.Streams) {
			logging.DebugWithContext(ctx, "Ignoring %s stream of %s", v.Type, title)
		}
		return OutcomeFailed, p.fail(ctx, item.ID, title, "No suitable video file found",
			&errs.NotFoundError{Op: "locate media", Message: "no suitable video"})
	}

	// Duration gate
	duration := source.DurationSeconds(item, stream)
	if p.config.MinVideoLengthSeconds > 0 && duration < p.config.MinVideoLengthSeconds {
		message := fmt.Sprintf("Video too short: %ds", duration)
		if p.config.DryRun {
			logging.InfoWithContext(ctx, "Would skip %s: %s", title, message)
			return OutcomeSkipped, nil
		}
		logging.InfoWithContext(ctx, "Skipping %s: %s (minimum %ds)", title, message, p.config.MinVideoLengthSeconds)
		if err := p.ledger.RecordSkip(ctx, item.ID, title, item.SourceTimestamp(), message); err != nil {
			return OutcomeFailed, fmt.Errorf("failed to record skip for %s: %w", item.ID, err)
		}
		return OutcomeSkipped, nil
	}

	folder, path := p.namer.ArtifactPath(p.config.DownloadDir, item, stream)
	needsDownload := !record.IsDownloaded() || !fileExists(record.LocalPath)

	if p.config.DryRun {
		p.logPlan(ctx, record, stream, path, needsDownload)
		return OutcomeDryRun, nil
	}

	// Download
	if needsDownload {
		failurePrefix, op := "Download failed: ", OpDownload
		if record.IsDownloaded() {
			logging.WarnWithContext(ctx, "Artifact missing at %s, downloading again", record.LocalPath)
			failurePrefix, op = "Retry download failed: ", OpDownloadRetry
		}
		if err := p.download(ctx, stream, path); err != nil {
			return OutcomeFailed, p.fail(ctx, item.ID, title, failurePrefix+err.Error(), err)
		}
		crossed, err := p.ledger.MarkDownloaded(ctx, item.ID, title, item.SourceTimestamp(), path)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("failed to record download for %s: %w", item.ID, err)
		}
		if crossed {
			p.alertResolved(ctx, item.ID, title, op)
		}
	} else {
		logging.DebugWithContext(ctx, "Already downloaded: %s", record.LocalPath)
		path = record.LocalPath
		folder = filepath.Base(filepath.Dir(path))
	}

	// Upload
	remoteURL := record.RemoteURL
	if !record.IsUploaded() {
		if !fileExists(path) {
			return OutcomeFailed, p.fail(ctx, item.ID, title, "Upload failed: local file not found: "+path,
				&errs.NotFoundError{Op: "upload", Message: "local file not found: " + path})
		}
		url, err := p.collab.Uploader.Upload(ctx, path, p.metadata(folder))
		if err != nil {
			return OutcomeFailed, p.fail(ctx, item.ID, title, "Upload failed: "+err.Error(), err)
		}
		crossed, err := p.ledger.MarkUploaded(ctx, item.ID, url)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("failed to record upload for %s: %w", item.ID, err)
		}
		if crossed {
			p.alertResolved(ctx, item.ID, title, OpUpload)
		}
		logging.InfoWithContext(ctx, "Uploaded %s: %s", title, url)
		remoteURL = url
	}

	// Notify
	if !record.IsNotified() {
		if err := p.notify(ctx, item.ID, title, remoteURL, notificationFailure, OpNotify); err != nil {
			return OutcomeFailed, err
		}
	}

	logging.LogItemAction(ctx, "processed", item.ID, map[string]interface{}{
		"title":      title,
		"stream":     stream.Type,
		"remote_url": remoteURL,
	})
	return OutcomeProcessed, nil
}

func (p *Processor) download(ctx context.Context, stream source.Stream, path string) error {
	if err := p.namer.EnsureFolder(path); err != nil {
		return &errs.TransferError{Op: "download", Message: "failed to create folder", Err: err}
	}

	start := time.Now()
	logging.InfoWithContext(ctx, "Downloading %s to %s", stream.Type, path)
	if err := p.collab.Downloader.Download(ctx, stream.DownloadRef, path); err != nil {
		return err
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	logging.LogPerformance(logging.PerformanceMetrics{
		Operation:      "download",
		Duration:       time.Since(start),
		BytesProcessed: size,
		Success:        true,
		Metadata:       map[string]interface{}{"stream": stream.Type},
	})
	return nil
}

// notify posts remoteURL and records the result. failurePrefix starts the
// ledger message when the notifier fails.
func (p *Processor) notify(ctx context.Context, id, title, remoteURL, failurePrefix, op string) error {
	if remoteURL == "" {
		return p.fail(ctx, id, title, failurePrefix+": no remote url",
			&errs.NotificationError{Op: "notify", Message: "no remote url recorded"})
	}

	ok, err := p.collab.Notifier.Notify(ctx, remoteURL)
	if err != nil {
		return p.fail(ctx, id, title, failurePrefix+": "+err.Error(), err)
	}
	if !ok {
		return p.fail(ctx, id, title, failurePrefix,
			&errs.NotificationError{Op: "notify", Message: "notifier reported failure"})
	}

	crossed, err := p.ledger.MarkNotified(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to record notification for %s: %w", id, err)
	}
	if crossed {
		p.alertResolved(ctx, id, title, op)
	}
	return nil
}

// fail records the failure, alerts when the ledger says so and returns the
// error to report for the item
func (p *Processor) fail(ctx context.Context, id, title, message string, cause error) error {
	logging.ErrorWithContext(ctx, "%s: %s", title, message)

	shouldAlert, err := p.ledger.RecordError(ctx, id, title, message)
	if err != nil {
		return fmt.Errorf("failed to record error for %s: %w", id, errors.Join(cause, err))
	}
	if shouldAlert {
		p.alert(ctx,
			fmt.Sprintf("Recording failed after %d attempts: %s", p.ledger.Threshold(), title),
			fmt.Sprintf("UUID: %s...\nError: %s", shortID(id), message))
	}
	return &ItemError{ItemID: id, Message: message, Err: cause}
}

func (p *Processor) alertResolved(ctx context.Context, id, title, op string) {
	p.alert(ctx,
		"✅ Error resolved: "+title,
		fmt.Sprintf("UUID: %s...\nOperation: %s\nThe previous error has been resolved successfully.", shortID(id), op))
}

func (p *Processor) alert(ctx context.Context, msg, details string) {
	if p.collab.Alerter == nil {
		return
	}
	ok, err := p.collab.Alerter.Alert(ctx, msg, details)
	if err != nil || !ok {
		logging.WarnWithContext(ctx, "Failed to send alert %q: %v", msg, err)
	}
}

func (p *Processor) metadata(title string) youtube.Metadata {
	return youtube.Metadata{
		Title:         title,
		Description:   p.config.Description,
		Tags:          p.config.Tags,
		CategoryID:    p.config.CategoryID,
		PrivacyStatus: p.config.PrivacyStatus,
	}
}

func (p *Processor) logPlan(ctx context.Context, record *ledger.Record, stream source.Stream, path string, needsDownload bool) {
	if needsDownload {
		logging.InfoWithContext(ctx, "Would download %s to %s", stream.Type, path)
	}
	if !record.IsUploaded() {
		logging.InfoWithContext(ctx, "Would upload %s", path)
	}
	if !record.IsNotified() {
		logging.InfoWithContext(ctx, "Would send Discord notification")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/ledger"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/source"
)

// RetrySummary counts what a retry sweep did
type RetrySummary struct {
	Selected int
	Uploaded int
	Notified int
	Failed   int
}

// RetrySweep advances records left unfinished by earlier runs. It only
// re-uploads and re-notifies; records that need a new download are picked
// up again when their item is listed.
func (p *Processor) RetrySweep(ctx context.Context) (RetrySummary, error) {
	var summary RetrySummary

	records, err := p.ledger.Retryable(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to collect retryable records: %w", err)
	}
	if len(records) == 0 {
		logging.InfoWithContext(ctx, "No recordings need retry")
		return summary, nil
	}

	summary.Selected = len(records)
	logging.InfoWithContext(ctx, "Found %d recording(s) to retry", len(records))

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		p.retryRecord(logging.WithItemID(ctx, record.ItemID), record, &summary)
	}

	logging.InfoWithContext(ctx, "Retry sweep finished: %d uploaded, %d notified, %d failed",
		summary.Uploaded, summary.Notified, summary.Failed)
	return summary, nil
}

func (p *Processor) retryRecord(ctx context.Context, record ledger.Record, summary *RetrySummary) {
	title := record.Title
	if title == "" {
		title = source.DefaultTitle
	}

	if record.IsDownloaded() && !record.IsUploaded() {
		if !fileExists(record.LocalPath) {
			logging.DebugWithContext(ctx, "No artifact to retry upload for %s", shortID(record.ItemID))
			return
		}

		logging.InfoWithContext(ctx, "Retrying upload for: %s...", shortID(record.ItemID))
		if p.config.DryRun {
			logging.InfoWithContext(ctx, "Would retry upload: %s", record.LocalPath)
			return
		}

		url, err := p.collab.Uploader.Upload(ctx, record.LocalPath, p.metadata(retryTitle(record)))
		if err != nil {
			p.fail(ctx, record.ItemID, title, "Retry upload failed: "+err.Error(), err)
			summary.Failed++
			return
		}
		crossed, err := p.ledger.MarkUploaded(ctx, record.ItemID, url)
		if err != nil {
			logging.ErrorWithContext(ctx, "Failed to record retried upload: %v", err)
			summary.Failed++
			return
		}
		if crossed {
			p.alertResolved(ctx, record.ItemID, title, OpUploadRetry)
		}
		logging.InfoWithContext(ctx, "Retry upload successful: %s", url)
		summary.Uploaded++

		record.RemoteURL = url
		record.UploadedAt = time.Now()
	}

	if record.IsUploaded() && !record.IsNotified() && record.RemoteURL != "" {
		logging.InfoWithContext(ctx, "Retrying Discord notification for: %s...", shortID(record.ItemID))
		if p.config.DryRun {
			logging.InfoWithContext(ctx, "Would retry Discord notification: %s", record.RemoteURL)
			return
		}

		if err := p.notify(ctx, record.ItemID, title, record.RemoteURL, "Retry notification failed", OpNotifyRetry); err != nil {
			summary.Failed++
			return
		}
		logging.InfoWithContext(ctx, "Retry notification successful")
		summary.Notified++
	}
}

// retryTitle is the artifact's folder name, which is the title the first
// upload attempt used
func retryTitle(record ledger.Record) string {
	folder := filepath.Base(filepath.Dir(record.LocalPath))
	if folder != "" && folder != "." && folder != string(filepath.Separator) {
		return folder
	}
	if record.Title != "" {
		return record.Title
	}
	return source.DefaultTitle
}

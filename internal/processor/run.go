package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/source"
)

// Lister returns the newest items recorded between from and to
type Lister interface {
	ListItems(ctx context.Context, limit int, from, to time.Time) ([]source.Item, error)
}

// Cleaner deletes local artifacts older than the retention period
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int, error)
}

// RunOptions configures one pass of the pipeline
type RunOptions struct {
	Limit     int
	Lookback  time.Duration
	Retention time.Duration
}

// RunSummary reports the result of a pass
type RunSummary struct {
	Listed          int
	Processed       int
	AlreadyComplete int
	Skipped         int
	Failed          int
	Retry           RetrySummary
	Deleted         int
	Duration        time.Duration
	Errors          []error
}

// Runner executes the retry sweep, the listed items and the retention sweep in order
type Runner struct {
	processor *Processor
	lister    Lister
	cleaner   Cleaner
	now       func() time.Time
}

// NewRunner creates a runner. cleaner may be nil to disable retention.
func NewRunner(processor *Processor, lister Lister, cleaner Cleaner) *Runner {
	return &Runner{
		processor: processor,
		lister:    lister,
		cleaner:   cleaner,
		now:       time.Now,
	}
}

// Run performs one pass. Item failures are collected in the summary; only a
// failed listing or a cancelled context stops the pass early.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{}
	if r.processor.DryRun() {
		logging.InfoWithContext(ctx, "Dry run: no downloads, uploads, notifications or ledger writes")
	}

	retry, err := r.processor.RetrySweep(ctx)
	summary.Retry = retry
	if err != nil {
		if ctx.Err() != nil {
			return summary, err
		}
		logging.ErrorWithContext(ctx, "Retry sweep failed: %v", err)
		summary.Errors = append(summary.Errors, err)
	}

	now := r.now()
	from := now.Add(-opts.Lookback)
	logging.InfoWithContext(ctx, "Fetching last %d recording(s) since %s", opts.Limit, from.Format("2006-01-02"))

	items, err := r.lister.ListItems(ctx, opts.Limit, from, now)
	if err != nil {
		summary.Duration = time.Since(start)
		return summary, fmt.Errorf("failed to list recordings: %w", err)
	}
	summary.Listed = len(items)
	if len(items) == 0 {
		logging.InfoWithContext(ctx, "No recordings found")
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}

		outcome, err := r.processor.ProcessItem(ctx, item)
		switch outcome {
		case OutcomeProcessed, OutcomeDryRun:
			summary.Processed++
		case OutcomeComplete:
			summary.AlreadyComplete++
		case OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		if err != nil {
			summary.Errors = append(summary.Errors, err)
		}
	}

	if r.cleaner != nil && opts.Retention > 0 {
		deleted, err := r.cleaner.Cleanup(ctx, opts.Retention)
		summary.Deleted = deleted
		if err != nil {
			logging.ErrorWithContext(ctx, "Retention sweep failed: %v", err)
			summary.Errors = append(summary.Errors, err)
		}
	}

	summary.Duration = time.Since(start)
	logging.InfoWithContext(ctx, "Completed run: %d processed, %d already complete, %d skipped, %d failed, %d retried, %d deleted",
		summary.Processed, summary.AlreadyComplete, summary.Skipped, summary.Failed,
		summary.Retry.Uploaded+summary.Retry.Notified, summary.Deleted)
	logging.LogPerformance(logging.PerformanceMetrics{
		Operation: "run",
		Duration:  summary.Duration,
		Success:   summary.Failed == 0,
		Metadata: map[string]interface{}{
			"listed":  summary.Listed,
			"failed":  summary.Failed,
			"deleted": summary.Deleted,
		},
	})
	return summary, nil
}

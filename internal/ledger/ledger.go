package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/errs"
)

// Ledger applies the processing state transitions on top of a Store
type Ledger struct {
	store     Store
	threshold int
	now       func() time.Time
	mu        sync.Mutex
}

// New creates a Ledger. threshold is the failure count at which errors
// start to be alerted; zero disables alerting.
func New(store Store, threshold int) *Ledger {
	return &Ledger{
		store:     store,
		threshold: threshold,
		now:       time.Now,
	}
}

// SetClock replaces the time source (mainly for testing)
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Threshold returns the configured alert threshold
func (l *Ledger) Threshold() int {
	return l.threshold
}

// Get returns the record for id, or nil when there is none
func (l *Ledger) Get(ctx context.Context, id string) (*Record, error) {
	return l.store.Get(ctx, id)
}

// List returns every record
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	return l.store.List(ctx)
}

// IsComplete reports whether the item went through every step
func (l *Ledger) IsComplete(ctx context.Context, id string) (bool, error) {
	record, err := l.store.Get(ctx, id)
	if err != nil || record == nil {
		return false, err
	}
	return record.IsComplete(), nil
}

// MarkDownloaded records a finished download, creating the record if needed.
// The result reports whether the record had crossed the alert threshold.
func (l *Ledger) MarkDownloaded(ctx context.Context, id, title, sourceTimestamp, localPath string) (bool, error) {
	return l.update(ctx, id, true, func(r *Record) bool {
		if r.Title == "" {
			r.Title = title
		}
		if r.SourceTimestamp == "" {
			r.SourceTimestamp = sourceTimestamp
		}
		r.LocalPath = localPath
		r.DownloadedAt = l.now()
		r.Status = StatusDownloaded
		return l.succeed(r)
	})
}

// MarkUploaded records the remote URL of a finished upload
func (l *Ledger) MarkUploaded(ctx context.Context, id, remoteURL string) (bool, error) {
	return l.update(ctx, id, false, func(r *Record) bool {
		r.UploadedAt = l.now()
		r.RemoteURL = remoteURL
		r.Status = StatusUploaded
		return l.succeed(r)
	})
}

// MarkNotified records a delivered notification
func (l *Ledger) MarkNotified(ctx context.Context, id string) (bool, error) {
	return l.update(ctx, id, false, func(r *Record) bool {
		r.NotifiedAt = l.now()
		r.Status = StatusNotified
		return l.succeed(r)
	})
}

// RecordError counts a failure. The result is true when an alert should be
// sent: the count reached the threshold and the message differs from the
// last one alerted. The alert bookkeeping is stamped in the same write.
func (l *Ledger) RecordError(ctx context.Context, id, title, message string) (bool, error) {
	return l.update(ctx, id, true, func(r *Record) bool {
		if r.Title == "" {
			r.Title = title
		}
		r.FailureCount++
		r.Status = StatusFailed
		r.ErrorMessage = message

		if l.threshold > 0 && r.FailureCount >= l.threshold && message != r.LastNotifiedError {
			r.ErrorNotifiedAt = l.now()
			r.LastNotifiedError = message
			return true
		}
		return false
	})
}

// RecordSkip marks an item that will never be processed
func (l *Ledger) RecordSkip(ctx context.Context, id, title, sourceTimestamp, message string) error {
	_, err := l.update(ctx, id, true, func(r *Record) bool {
		if r.Title == "" {
			r.Title = title
		}
		if r.SourceTimestamp == "" {
			r.SourceTimestamp = sourceTimestamp
		}
		r.Status = StatusSkipped
		r.ErrorMessage = message
		return false
	})
	return err
}

// Retryable returns records left unfinished by an earlier run. Records whose
// artifact was deleted from disk, and skipped records, are left out.
func (l *Ledger) Retryable(ctx context.Context) ([]Record, error) {
	records, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var result []Record
	for _, r := range records {
		if r.Status == StatusSkipped {
			continue
		}

		needsRetry := r.Status == StatusFailed ||
			(r.IsDownloaded() && !r.IsUploaded()) ||
			(r.IsUploaded() && !r.IsNotified())
		if !needsRetry {
			continue
		}

		if r.LocalPath != "" {
			if _, err := os.Stat(r.LocalPath); errors.Is(err, os.ErrNotExist) {
				continue
			}
		}

		result = append(result, r)
	}
	return result, nil
}

// succeed clears the error state and reports whether it had been alerted on
func (l *Ledger) succeed(r *Record) bool {
	crossed := l.threshold > 0 && r.FailureCount >= l.threshold
	r.clearErrors()
	return crossed
}

// update runs a read-modify-write on one record under the ledger lock
func (l *Ledger) update(ctx context.Context, id string, create bool, apply func(*Record) bool) (bool, error) {
	if id == "" {
		return false, &errs.ValidationError{Op: "ledger", Message: "item id cannot be empty"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if record == nil {
		if !create {
			return false, &errs.NotFoundError{Op: "ledger", Message: "no ledger record for " + id}
		}
		record = &Record{ItemID: id}
	}

	result := apply(record)
	if err := l.store.Upsert(ctx, *record); err != nil {
		return false, err
	}
	return result, nil
}

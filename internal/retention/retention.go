// Package retention deletes downloaded artifacts once they are older than the
// retention period
package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/curtbushko/zoom-to-youtube/internal/ledger"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

// RecordLister lists ledger records
type RecordLister interface {
	List(ctx context.Context) ([]ledger.Record, error)
}

// Sweeper removes expired artifacts. Ledger rows are never modified.
type Sweeper struct {
	records RecordLister
	dryRun  bool
	now     func() time.Time
}

// NewSweeper creates a Sweeper. In dry-run mode it only logs what it would delete.
func NewSweeper(records RecordLister, dryRun bool) *Sweeper {
	return &Sweeper{
		records: records,
		dryRun:  dryRun,
		now:     time.Now,
	}
}

// Cleanup deletes artifacts downloaded before now minus retention and
// returns how many were deleted. Individual deletion failures are logged
// and skipped.
func (s *Sweeper) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	records, err := s.records.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list ledger records: %w", err)
	}

	cutoff := s.now().Add(-retention)
	deleted := 0
	var freed int64

	for _, record := range records {
		if record.LocalPath == "" || !record.IsDownloaded() || !record.DownloadedAt.Before(cutoff) {
			continue
		}

		info, err := os.Stat(record.LocalPath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			logging.WarnWithContext(ctx, "Failed to stat %s: %v", record.LocalPath, err)
			continue
		}

		if s.dryRun {
			logging.InfoWithContext(ctx, "Would delete %s (%s, downloaded %s)",
				record.LocalPath, humanize.Bytes(uint64(info.Size())), humanize.Time(record.DownloadedAt))
			continue
		}

		if err := os.Remove(record.LocalPath); err != nil {
			logging.ErrorWithContext(ctx, "Failed to delete old video: %s - %v", record.LocalPath, err)
			continue
		}
		deleted++
		freed += info.Size()
		logging.InfoWithContext(ctx, "Deleted old video: %s (%s)", record.LocalPath, humanize.Bytes(uint64(info.Size())))

		removeEmptyDir(ctx, filepath.Dir(record.LocalPath))
	}

	if deleted > 0 {
		logging.InfoWithContext(ctx, "Cleaned up %d old video(s), freed %s", deleted, humanize.Bytes(uint64(freed)))
	}
	return deleted, nil
}

func removeEmptyDir(ctx context.Context, dir string) {
	if dir == "." || dir == string(filepath.Separator) {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		logging.WarnWithContext(ctx, "Failed to remove empty folder %s: %v", dir, err)
		return
	}
	logging.DebugWithContext(ctx, "Removed empty folder %s", dir)
}

package zoom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/download"
	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/logging"
	"github.com/curtbushko/zoom-to-youtube/internal/progress"
)

// Downloader fetches recording files with the account's access token
type Downloader struct {
	auth    Authenticator
	manager download.Manager
}

// NewDownloader creates a Downloader backed by a download manager
func NewDownloader(auth Authenticator, manager download.Manager) *Downloader {
	return &Downloader{auth: auth, manager: manager}
}

// Download writes the file behind ref to dest, creating parent directories
func (d *Downloader) Download(ctx context.Context, ref, dest string) error {
	if ref == "" {
		return &errs.ValidationError{Op: "download", Message: "stream has no download url"}
	}

	token, err := d.auth.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker(ctx, "Download "+filepath.Base(dest), progress.DefaultStep)
	result, err := d.manager.Download(ctx, download.Request{
		URL:         ref,
		Destination: dest,
		Headers:     map[string]string{"Authorization": token.Header()},
		Progress:    tracker.Update,
	})
	if err != nil {
		return downloadError(err)
	}

	tracker.Finish(result.BytesDownloaded)
	logging.DebugWithContext(ctx, "Downloaded %s in %d attempt(s), %s", filepath.Base(dest), result.Attempts, result.Duration.Round(time.Millisecond))
	return nil
}

func downloadError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr *download.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			return &errs.AuthError{Op: "download", Message: "zoom refused the download", Err: err}
		}
		return &errs.TransferError{
			Op:         "download",
			Message:    fmt.Sprintf("download failed with status %d", statusErr.StatusCode),
			StatusCode: statusErr.StatusCode,
			Err:        err,
		}
	}

	return &errs.TransferError{Op: "download", Message: "download failed", Err: err}
}

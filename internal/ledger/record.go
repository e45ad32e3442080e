// Package ledger persists per-recording processing state so that runs are
// idempotent and resumable
package ledger

import (
	"time"
)

// Status is the last transition a record went through
type Status string

const (
	StatusNone       Status = ""
	StatusDownloaded Status = "downloaded"
	StatusUploaded   Status = "uploaded"
	StatusNotified   Status = "notified"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Record is one row of the ledger, keyed by ItemID
type Record struct {
	ItemID          string
	Title           string
	SourceTimestamp string
	LocalPath       string
	DownloadedAt    time.Time
	UploadedAt      time.Time
	RemoteURL       string
	NotifiedAt      time.Time
	Status          Status
	ErrorMessage    string
	FailureCount    int
	ErrorNotifiedAt time.Time
	// LastNotifiedError is the message of the last alert sent for this record
	LastNotifiedError string
}

// IsComplete reports whether download, upload and notification all happened
func (r Record) IsComplete() bool {
	return !r.DownloadedAt.IsZero() && !r.UploadedAt.IsZero() && !r.NotifiedAt.IsZero()
}

// IsDownloaded reports whether the artifact was downloaded
func (r Record) IsDownloaded() bool {
	return !r.DownloadedAt.IsZero()
}

// IsUploaded reports whether the artifact was uploaded
func (r Record) IsUploaded() bool {
	return !r.UploadedAt.IsZero()
}

// IsNotified reports whether the upload was announced
func (r Record) IsNotified() bool {
	return !r.NotifiedAt.IsZero()
}

// clearErrors resets the error bookkeeping after a successful step
func (r *Record) clearErrors() {
	r.ErrorMessage = ""
	r.FailureCount = 0
	r.ErrorNotifiedAt = time.Time{}
	r.LastNotifiedError = ""
}

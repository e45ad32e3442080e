package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/filename"
	"github.com/curtbushko/zoom-to-youtube/internal/ledger"
	"github.com/curtbushko/zoom-to-youtube/internal/source"
	"github.com/curtbushko/zoom-to-youtube/internal/youtube"
)

// Mock implementations for testing

type mockDownloader struct {
	calls []string
	err   error
	order *[]string
}

func (m *mockDownloader) Download(ctx context.Context, ref, dest string) error {
	m.calls = append(m.calls, ref)
	*m.order = append(*m.order, "download")
	if m.err != nil {
		return m.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("video data"), 0644)
}

type mockUploader struct {
	paths  []string
	titles []string
	meta   youtube.Metadata
	url    string
	err    error
	order  *[]string
}

func (m *mockUploader) Upload(ctx context.Context, path string, meta youtube.Metadata) (string, error) {
	m.paths = append(m.paths, path)
	m.titles = append(m.titles, meta.Title)
	m.meta = meta
	*m.order = append(*m.order, "upload")
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}

type mockNotifier struct {
	urls  []string
	ok    bool
	err   error
	order *[]string
}

func (m *mockNotifier) Notify(ctx context.Context, url string) (bool, error) {
	m.urls = append(m.urls, url)
	*m.order = append(*m.order, "notify")
	return m.ok, m.err
}

type mockAlerter struct {
	messages []string
	details  []string
}

func (m *mockAlerter) Alert(ctx context.Context, msg, details string) (bool, error) {
	m.messages = append(m.messages, msg)
	m.details = append(m.details, details)
	return true, nil
}

// countingStore counts ledger writes
type countingStore struct {
	ledger.Store
	upserts int
}

func (s *countingStore) Upsert(ctx context.Context, record ledger.Record) error {
	s.upserts++
	return s.Store.Upsert(ctx, record)
}

type harness struct {
	processor  *Processor
	ledger     *ledger.Ledger
	store      *countingStore
	namer      filename.FolderNamer
	downloader *mockDownloader
	uploader   *mockUploader
	notifier   *mockNotifier
	alerter    *mockAlerter
	order      []string
	dir        string
}

func newHarness(t *testing.T, dryRun bool) *harness {
	t.Helper()

	base, err := ledger.NewCSVStore(filepath.Join(t.TempDir(), "processed_recordings.csv"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	h := &harness{
		store: &countingStore{Store: base},
		namer: filename.NewFolderNamer(filename.Options{}),
		dir:   t.TempDir(),
	}
	h.ledger = ledger.New(h.store, 3)
	h.downloader = &mockDownloader{order: &h.order}
	h.uploader = &mockUploader{url: "https://youtu.be/vid123", order: &h.order}
	h.notifier = &mockNotifier{ok: true, order: &h.order}
	h.alerter = &mockAlerter{}

	h.processor = NewProcessor(h.ledger, h.namer, Collaborators{
		Downloader: h.downloader,
		Uploader:   h.uploader,
		Notifier:   h.notifier,
		Alerter:    h.alerter,
	}, Config{
		DownloadDir:           h.dir,
		MinVideoLengthSeconds: 60,
		Description:           "Uploaded via automation",
		Tags:                  []string{"zoom", "meeting"},
		CategoryID:            "22",
		DryRun:                dryRun,
	})
	return h
}

func (h *harness) record(t *testing.T, id string) *ledger.Record {
	t.Helper()
	record, err := h.ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to read ledger: %v", err)
	}
	if record == nil {
		t.Fatalf("Expected a ledger record for %s", id)
	}
	return record
}

func standupItem() source.Item {
	return source.Item{
		ID:              "u1-abcdefgh-uuid",
		Title:           "Standup",
		StartTime:       time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 5,
		Streams: []source.Stream{
			{Type: source.TypeActiveSpeaker, DownloadRef: "r0"},
			{Type: source.TypeSharedScreenWithGalleryView, DownloadRef: "r1"},
		},
	}
}

func TestProcessItemEndToEnd(t *testing.T) {
	h := newHarness(t, false)
	item := standupItem()

	outcome, err := h.processor.ProcessItem(context.Background(), item)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Errorf("Expected processed, got %s", outcome)
	}

	if len(h.downloader.calls) != 1 || h.downloader.calls[0] != "r1" {
		t.Errorf("Expected download of r1, got %v", h.downloader.calls)
	}
	if strings.Join(h.order, ",") != "download,upload,notify" {
		t.Errorf("Unexpected call order %v", h.order)
	}

	folder := h.namer.FolderName(item.StartTime, item.Title)
	if len(h.uploader.titles) != 1 || h.uploader.titles[0] != folder {
		t.Errorf("Expected upload title %q, got %v", folder, h.uploader.titles)
	}
	if h.uploader.meta.CategoryID != "22" || h.uploader.meta.Description != "Uploaded via automation" {
		t.Errorf("Unexpected metadata %+v", h.uploader.meta)
	}
	if len(h.notifier.urls) != 1 || h.notifier.urls[0] != "https://youtu.be/vid123" {
		t.Errorf("Expected notification with upload url, got %v", h.notifier.urls)
	}

	record := h.record(t, item.ID)
	if !record.IsComplete() || record.Status != ledger.StatusNotified {
		t.Errorf("Expected complete notified record, got %+v", record)
	}
	if record.RemoteURL != "https://youtu.be/vid123" {
		t.Errorf("Expected remote url, got %q", record.RemoteURL)
	}
	expectedPath := filepath.Join(h.dir, folder, source.TypeSharedScreenWithGalleryView+".mp4")
	if record.LocalPath != expectedPath {
		t.Errorf("Expected local path %s, got %s", expectedPath, record.LocalPath)
	}
	if len(h.alerter.messages) != 0 {
		t.Errorf("Expected no alerts, got %v", h.alerter.messages)
	}
}

func TestProcessItemIdempotent(t *testing.T) {
	h := newHarness(t, false)
	item := standupItem()

	if _, err := h.processor.ProcessItem(context.Background(), item); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	calls := len(h.order)
	upserts := h.store.upserts

	outcome, err := h.processor.ProcessItem(context.Background(), item)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if outcome != OutcomeComplete {
		t.Errorf("Expected already complete, got %s", outcome)
	}
	if len(h.order) != calls {
		t.Errorf("Expected no collaborator calls, got %v", h.order[calls:])
	}
	if h.store.upserts != upserts {
		t.Errorf("Expected no ledger writes, got %d", h.store.upserts-upserts)
	}
}

func TestProcessItemResumesAfterDownload(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	item := standupItem()

	path := filepath.Join(h.dir, "earlier", "gallery_view.mp4")
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte("video"), 0644)
	if _, err := h.ledger.MarkDownloaded(ctx, item.ID, item.Title, item.SourceTimestamp(), path); err != nil {
		t.Fatal(err)
	}

	if _, err := h.processor.ProcessItem(ctx, item); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Join(h.order, ",") != "upload,notify" {
		t.Errorf("Expected upload then notify, got %v", h.order)
	}
	if h.uploader.paths[0] != path {
		t.Errorf("Expected upload of stored path %s, got %s", path, h.uploader.paths[0])
	}
	if h.uploader.titles[0] != "earlier" {
		t.Errorf("Expected folder name title, got %q", h.uploader.titles[0])
	}
}

func TestProcessItemRepairsMissingArtifact(t *testing.T) {
	tests := []struct {
		name          string
		uploadedURL   string
		expectedOrder string
		expectedURL   string
	}{
		{
			name:          "upload pending",
			expectedOrder: "download,upload,notify",
			expectedURL:   "https://youtu.be/vid123",
		},
		{
			name:          "uploaded but not notified",
			uploadedURL:   "https://youtu.be/earlier",
			expectedOrder: "download,notify",
			expectedURL:   "https://youtu.be/earlier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			ctx := context.Background()
			item := standupItem()

			missing := filepath.Join(h.dir, "gone", "gallery_view.mp4")
			if _, err := h.ledger.MarkDownloaded(ctx, item.ID, item.Title, item.SourceTimestamp(), missing); err != nil {
				t.Fatal(err)
			}
			if tt.uploadedURL != "" {
				if _, err := h.ledger.MarkUploaded(ctx, item.ID, tt.uploadedURL); err != nil {
					t.Fatal(err)
				}
			}

			if _, err := h.processor.ProcessItem(ctx, item); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if strings.Join(h.order, ",") != tt.expectedOrder {
				t.Errorf("Expected calls %s, got %v", tt.expectedOrder, h.order)
			}
			if len(h.notifier.urls) != 1 || h.notifier.urls[0] != tt.expectedURL {
				t.Errorf("Expected notification with %s, got %v", tt.expectedURL, h.notifier.urls)
			}

			record := h.record(t, item.ID)
			if record.LocalPath == missing {
				t.Error("Expected local path to point at the new download")
			}
			if !fileExists(record.LocalPath) {
				t.Errorf("Expected artifact at %s", record.LocalPath)
			}
			if !record.IsComplete() {
				t.Errorf("Expected record to complete, got %+v", record)
			}
		})
	}
}

func TestProcessItemRepairFailure(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	item := standupItem()

	missing := filepath.Join(h.dir, "gone", "gallery_view.mp4")
	if _, err := h.ledger.MarkDownloaded(ctx, item.ID, item.Title, item.SourceTimestamp(), missing); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ledger.MarkUploaded(ctx, item.ID, "https://youtu.be/earlier"); err != nil {
		t.Fatal(err)
	}

	h.downloader.err = errors.New("connection reset")
	for i := 0; i < 3; i++ {
		if _, err := h.processor.ProcessItem(ctx, item); err == nil {
			t.Fatal("Expected the repair download to fail")
		}
	}
	record := h.record(t, item.ID)
	if record.ErrorMessage != "Retry download failed: connection reset" {
		t.Errorf("Expected retry download message, got %q", record.ErrorMessage)
	}
	if len(h.notifier.urls) != 0 {
		t.Errorf("Expected no notification before the artifact is back, got %v", h.notifier.urls)
	}

	h.downloader.err = nil
	if _, err := h.processor.ProcessItem(ctx, item); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resolved := false
	for _, details := range h.alerter.details {
		if strings.Contains(details, "Operation: "+OpDownloadRetry) {
			resolved = true
		}
	}
	if !resolved {
		t.Errorf("Expected a resolved alert for %q, got %v", OpDownloadRetry, h.alerter.details)
	}
}

func TestProcessItemLocateMediaFailures(t *testing.T) {
	tests := []struct {
		name            string
		streams         []source.Stream
		expectedMessage string
	}{
		{"no streams", nil, "No recording files found"},
		{"audio only", []source.Stream{{Type: source.TypeAudioOnly, DownloadRef: "a"}}, "No suitable video file found"},
		{"shared screen only", []source.Stream{{Type: source.TypeSharedScreen, DownloadRef: "s"}}, "No suitable video file found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			item := standupItem()
			item.Streams = tt.streams

			outcome, err := h.processor.ProcessItem(context.Background(), item)
			if outcome != OutcomeFailed {
				t.Errorf("Expected failed, got %s", outcome)
			}
			if !errs.IsNotFound(err) {
				t.Errorf("Expected NotFoundError, got %v", err)
			}
			record := h.record(t, item.ID)
			if record.ErrorMessage != tt.expectedMessage || record.FailureCount != 1 {
				t.Errorf("Expected %q with one failure, got %q (%d)", tt.expectedMessage, record.ErrorMessage, record.FailureCount)
			}
			if len(h.order) != 0 {
				t.Errorf("Expected no collaborator calls, got %v", h.order)
			}
		})
	}
}

func TestProcessItemTooShortIsSkipped(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	item := source.Item{
		ID:    "short-1",
		Title: "Quick Call",
		Streams: []source.Stream{
			{Type: source.TypeGalleryView, DownloadRef: "r", Start: start, End: start.Add(30 * time.Second)},
		},
	}

	outcome, err := h.processor.ProcessItem(ctx, item)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Errorf("Expected skipped, got %s", outcome)
	}

	record := h.record(t, item.ID)
	if record.Status != ledger.StatusSkipped || record.ErrorMessage != "Video too short: 30s" {
		t.Errorf("Unexpected record %+v", record)
	}
	if record.FailureCount != 0 {
		t.Errorf("Expected no failure count, got %d", record.FailureCount)
	}

	upserts := h.store.upserts
	if outcome, _ := h.processor.ProcessItem(ctx, item); outcome != OutcomeSkipped {
		t.Errorf("Expected skipped on second pass, got %s", outcome)
	}
	if h.store.upserts != upserts || len(h.order) != 0 {
		t.Error("Expected skipped item to be left alone")
	}

	retryable, err := h.ledger.Retryable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(retryable) != 0 {
		t.Errorf("Expected skipped item not to be retried, got %v", retryable)
	}
}

func TestProcessItemAlertGating(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	item := standupItem()
	h.downloader.err = &errs.TransferError{Op: "download", Message: "connection reset"}

	for i := 1; i <= 4; i++ {
		outcome, err := h.processor.ProcessItem(ctx, item)
		if outcome != OutcomeFailed || !errs.IsTransfer(err) {
			t.Fatalf("Attempt %d: expected transfer failure, got %s %v", i, outcome, err)
		}
		expectedAlerts := 0
		if i >= 3 {
			expectedAlerts = 1
		}
		if len(h.alerter.messages) != expectedAlerts {
			t.Errorf("Attempt %d: expected %d alerts, got %d", i, expectedAlerts, len(h.alerter.messages))
		}
	}

	if h.alerter.messages[0] != "Recording failed after 3 attempts: Standup" {
		t.Errorf("Unexpected alert %q", h.alerter.messages[0])
	}
	if h.alerter.details[0] != "UUID: u1-abcde...\nError: Download failed: connection reset" {
		t.Errorf("Unexpected alert details %q", h.alerter.details[0])
	}
	if len(h.uploader.paths) != 0 {
		t.Error("Expected upload not to run after a failed download")
	}

	h.downloader.err = nil
	if _, err := h.processor.ProcessItem(ctx, item); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(h.alerter.messages) != 2 {
		t.Fatalf("Expected a resolved alert, got %v", h.alerter.messages)
	}
	if h.alerter.messages[1] != "✅ Error resolved: Standup" {
		t.Errorf("Unexpected resolved alert %q", h.alerter.messages[1])
	}
	if !strings.Contains(h.alerter.details[1], "Operation: Download") {
		t.Errorf("Expected download operation in %q", h.alerter.details[1])
	}
}

func TestProcessItemNotifierFailure(t *testing.T) {
	tests := []struct {
		name            string
		ok              bool
		err             error
		expectedMessage string
	}{
		{"reported false", false, nil, "Discord notification failed"},
		{"error", false, errors.New("webhook down"), "Discord notification failed: webhook down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			ctx := context.Background()
			item := standupItem()
			h.notifier.ok = tt.ok
			h.notifier.err = tt.err

			outcome, err := h.processor.ProcessItem(ctx, item)
			if outcome != OutcomeFailed || err == nil {
				t.Fatalf("Expected failure, got %s %v", outcome, err)
			}
			record := h.record(t, item.ID)
			if record.ErrorMessage != tt.expectedMessage {
				t.Errorf("Expected %q, got %q", tt.expectedMessage, record.ErrorMessage)
			}
			if !record.IsUploaded() || record.Status != ledger.StatusFailed {
				t.Errorf("Expected uploaded record in failed state, got %+v", record)
			}

			h.notifier.ok, h.notifier.err = true, nil
			if _, err := h.processor.ProcessItem(ctx, item); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(h.uploader.paths) != 1 {
				t.Errorf("Expected a single upload, got %d", len(h.uploader.paths))
			}
			if !h.record(t, item.ID).IsComplete() {
				t.Error("Expected record to complete")
			}
		})
	}
}

func TestProcessItemDryRun(t *testing.T) {
	h := newHarness(t, true)

	outcome, err := h.processor.ProcessItem(context.Background(), standupItem())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if outcome != OutcomeDryRun {
		t.Errorf("Expected dry run outcome, got %s", outcome)
	}
	if len(h.order) != 0 {
		t.Errorf("Expected no collaborator calls, got %v", h.order)
	}
	if h.store.upserts != 0 {
		t.Errorf("Expected no ledger writes, got %d", h.store.upserts)
	}
}

func TestProcessItemWithoutID(t *testing.T) {
	h := newHarness(t, false)
	item := standupItem()
	item.ID = ""

	outcome, err := h.processor.ProcessItem(context.Background(), item)
	if outcome != OutcomeRejected || !errs.IsValidation(err) {
		t.Errorf("Expected rejected validation error, got %s %v", outcome, err)
	}
	if h.store.upserts != 0 {
		t.Error("Expected no ledger writes")
	}
}

func writeArtifact(t *testing.T, dir, folder string) string {
	t.Helper()
	path := filepath.Join(dir, folder, "gallery_view.mp4")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRetrySweep(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	// downloaded, upload pending
	pendingUpload := writeArtifact(t, h.dir, "2024-03-01 14-00 - Weekly Sync")
	h.ledger.MarkDownloaded(ctx, "a", "Weekly Sync", "", pendingUpload)

	// uploaded, notification pending
	uploaded := writeArtifact(t, h.dir, "2024-03-02 09-00 - Retro")
	h.ledger.MarkDownloaded(ctx, "b", "Retro", "", uploaded)
	h.ledger.MarkUploaded(ctx, "b", "https://youtu.be/stored")

	// artifact deleted, needs a full re-download
	h.ledger.MarkDownloaded(ctx, "c", "Gone", "", filepath.Join(h.dir, "gone", "gallery_view.mp4"))

	summary, err := h.processor.RetrySweep(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Selected != 2 || summary.Uploaded != 1 || summary.Notified != 2 || summary.Failed != 0 {
		t.Errorf("Unexpected summary %+v", summary)
	}
	if len(h.downloader.calls) != 0 {
		t.Error("Expected the retry sweep never to download")
	}
	if len(h.uploader.titles) != 1 || h.uploader.titles[0] != "2024-03-01 14-00 - Weekly Sync" {
		t.Errorf("Expected folder name as upload title, got %v", h.uploader.titles)
	}
	if strings.Join(h.notifier.urls, ",") != "https://youtu.be/vid123,https://youtu.be/stored" {
		t.Errorf("Unexpected notifications %v", h.notifier.urls)
	}
	for _, id := range []string{"a", "b"} {
		if !h.record(t, id).IsComplete() {
			t.Errorf("Expected %s to be complete", id)
		}
	}
	if h.record(t, "c").IsUploaded() {
		t.Error("Expected record with missing artifact to be left alone")
	}
}

func TestRetrySweepUploadFailure(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	path := writeArtifact(t, h.dir, "2024-03-01 14-00 - Weekly Sync")
	h.ledger.MarkDownloaded(ctx, "a", "Weekly Sync", "", path)
	h.uploader.err = &errs.TransferError{Op: "upload", Message: "quota exceeded"}

	summary, err := h.processor.RetrySweep(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Expected one failure, got %+v", summary)
	}

	record := h.record(t, "a")
	if record.ErrorMessage != "Retry upload failed: quota exceeded" {
		t.Errorf("Unexpected error message %q", record.ErrorMessage)
	}
	if len(h.notifier.urls) != 0 {
		t.Error("Expected no notification after a failed upload")
	}
}

func TestRetrySweepDryRun(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	path := writeArtifact(t, h.dir, "2024-03-01 14-00 - Weekly Sync")
	h.ledger.MarkDownloaded(ctx, "a", "Weekly Sync", "", path)
	upserts := h.store.upserts

	if _, err := h.processor.RetrySweep(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(h.order) != 0 || h.store.upserts != upserts {
		t.Error("Expected dry run retry to have no side effects")
	}
}

func TestRetryTitle(t *testing.T) {
	tests := []struct {
		name     string
		record   ledger.Record
		expected string
	}{
		{"folder name", ledger.Record{LocalPath: "/d/2024-03-01 14-00 - Sync/gallery_view.mp4", Title: "Sync"}, "2024-03-01 14-00 - Sync"},
		{"stored title", ledger.Record{LocalPath: "gallery_view.mp4", Title: "Sync"}, "Sync"},
		{"default", ledger.Record{}, source.DefaultTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryTitle(tt.record); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

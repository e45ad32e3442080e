package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/curtbushko/zoom-to-youtube/internal/logging"
)

// Column names of the CSV ledger. The first ten match files written by
// earlier versions, the rest are optional on read.
var csvHeaders = []string{
	"zoom_uuid",
	"meeting_topic",
	"start_time",
	"file_path",
	"zoom_downloaded_at",
	"youtube_uploaded_at",
	"youtube_url",
	"discord_notified_at",
	"status",
	"error_message",
	"failure_count",
	"error_notified_at",
	"last_notified_error",
}

// UnknownTime stands in for a step timestamp that was recorded but cannot be
// read back
var UnknownTime = time.Unix(0, 0).UTC()

// Layouts accepted for timestamp columns, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// CSVStore keeps the ledger in a single CSV file. Records are held in
// memory and the whole file is rewritten atomically on every change.
type CSVStore struct {
	filePath string
	records  map[string]Record
	order    []string
	mu       sync.RWMutex
}

// NewCSVStore opens the CSV ledger at filePath, creating it with a header
// row if it does not exist
func NewCSVStore(filePath string) (*CSVStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("ledger file path cannot be empty")
	}

	store := &CSVStore{
		filePath: filePath,
		records:  make(map[string]Record),
	}

	_, err := os.Stat(filePath)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := store.save(); err != nil {
			return nil, fmt.Errorf("failed to create ledger file: %w", err)
		}
		return store, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to check file: %w", err)
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	return store, nil
}

// Get returns a copy of the record for id
func (s *CSVStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Upsert stores the record and rewrites the file
func (s *CSVStore) Upsert(_ context.Context, record Record) error {
	if record.ItemID == "" {
		return fmt.Errorf("record has no item id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.records[record.ItemID]
	if !existed {
		s.order = append(s.order, record.ItemID)
	}
	s.records[record.ItemID] = record

	if err := s.save(); err != nil {
		// Keep memory consistent with what is on disk
		if existed {
			s.records[record.ItemID] = previous
		} else {
			delete(s.records, record.ItemID)
			s.order = s.order[:len(s.order)-1]
		}
		return err
	}
	return nil
}

// List returns all records in file order
func (s *CSVStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.records[id])
	}
	return result, nil
}

// Close is a no-op; every change is already on disk
func (s *CSVStore) Close() error {
	return nil
}

// load reads the file using its own header row, so files that lack newer
// columns (or carry unknown ones) are still accepted
func (s *CSVStore) load() error {
	file, err := os.Open(s.filePath)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := index["zoom_uuid"]; !ok {
		return fmt.Errorf("ledger file %s has no zoom_uuid column", s.filePath)
	}

	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("failed to read ledger row %d: %w", line, err)
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		record, problems := recordFromFields(field)
		if record.ItemID == "" {
			continue
		}
		for _, problem := range problems {
			logging.Warn("Ledger row %d (%s): %s", line, record.ItemID, problem)
		}

		if _, seen := s.records[record.ItemID]; !seen {
			s.order = append(s.order, record.ItemID)
		}
		s.records[record.ItemID] = record
	}

	return nil
}

// recordFromFields builds a record from one row. Values that cannot be
// parsed are reported in problems and do not reject the row: an unreadable
// step timestamp becomes UnknownTime so the step still counts as done, and
// an unreadable failure count becomes zero.
func recordFromFields(field func(string) string) (record Record, problems []string) {
	record = Record{
		ItemID:            field("zoom_uuid"),
		Title:             field("meeting_topic"),
		SourceTimestamp:   field("start_time"),
		LocalPath:         field("file_path"),
		RemoteURL:         field("youtube_url"),
		Status:            Status(field("status")),
		ErrorMessage:      field("error_message"),
		LastNotifiedError: field("last_notified_error"),
	}

	timestamps := []struct {
		column string
		target *time.Time
	}{
		{"zoom_downloaded_at", &record.DownloadedAt},
		{"youtube_uploaded_at", &record.UploadedAt},
		{"discord_notified_at", &record.NotifiedAt},
		{"error_notified_at", &record.ErrorNotifiedAt},
	}
	for _, ts := range timestamps {
		parsed, err := parseTimestamp(field(ts.column))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", ts.column, err))
			parsed = UnknownTime
		}
		*ts.target = parsed
	}

	if count := strings.TrimSpace(field("failure_count")); count != "" {
		n, err := cast.ToIntE(count)
		if err != nil {
			problems = append(problems, fmt.Sprintf("failure_count: invalid value %q", count))
		}
		record.FailureCount = n
	}

	return record, problems
}

func recordToFields(r Record) []string {
	failureCount := ""
	if r.FailureCount > 0 {
		failureCount = cast.ToString(r.FailureCount)
	}

	return []string{
		r.ItemID,
		r.Title,
		r.SourceTimestamp,
		r.LocalPath,
		formatTimestamp(r.DownloadedAt),
		formatTimestamp(r.UploadedAt),
		r.RemoteURL,
		formatTimestamp(r.NotifiedAt),
		string(r.Status),
		r.ErrorMessage,
		failureCount,
		formatTimestamp(r.ErrorNotifiedAt),
		r.LastNotifiedError,
	}
}

// save rewrites the whole file through a temporary file and a rename
func (s *CSVStore) save() error {
	tempFile := s.filePath + ".tmp"

	file, err := os.OpenFile(tempFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary ledger file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeaders); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, id := range s.order {
		if err := writer.Write(recordToFields(s.records[id])); err != nil {
			file.Close()
			os.Remove(tempFile)
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()

	if err := writer.Error(); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename ledger file: %w", err)
	}

	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

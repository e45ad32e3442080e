package zoom

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/curtbushko/zoom-to-youtube/internal/errs"
	"github.com/curtbushko/zoom-to-youtube/internal/source"
)

// zoomTime decodes Zoom timestamps, which may be empty strings
type zoomTime struct {
	time.Time
}

func (t *zoomTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("invalid zoom timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

func (t zoomTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// RecordingFile represents a single recording file within a meeting recording
type RecordingFile struct {
	ID             string   `json:"id"`
	MeetingID      string   `json:"meeting_id"`
	RecordingStart zoomTime `json:"recording_start"`
	RecordingEnd   zoomTime `json:"recording_end"`
	FileType       string   `json:"file_type"`
	FileExtension  string   `json:"file_extension,omitempty"`
	FileSize       int64    `json:"file_size"`
	DownloadURL    string   `json:"download_url"`
	Status         string   `json:"status"`
	RecordingType  string   `json:"recording_type,omitempty"`
}

// Recording represents a meeting recording with all associated files
type Recording struct {
	UUID           string          `json:"uuid"`
	ID             int64           `json:"id"`
	HostID         string          `json:"host_id"`
	Topic          string          `json:"topic"`
	StartTime      zoomTime        `json:"start_time"`
	Duration       int             `json:"duration"`
	TotalSize      int64           `json:"total_size"`
	RecordingCount int             `json:"recording_count"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// ListRecordingsResponse represents the response from the list recordings API endpoint
type ListRecordingsResponse struct {
	From          string      `json:"from"`
	To            string      `json:"to"`
	PageCount     int         `json:"page_count"`
	PageSize      int         `json:"page_size"`
	TotalRecords  int         `json:"total_records"`
	NextPageToken string      `json:"next_page_token,omitempty"`
	Meetings      []Recording `json:"meetings"`
}

// ToItem converts a Zoom meeting into a source item. Files without a
// recording type are dropped.
func ToItem(r Recording) (source.Item, error) {
	if strings.TrimSpace(r.UUID) == "" {
		return source.Item{}, &errs.ValidationError{
			Op:      "zoom listing",
			Message: fmt.Sprintf("meeting %q has no uuid", r.Topic),
		}
	}

	item := source.Item{
		ID:              r.UUID,
		Title:           strings.TrimSpace(r.Topic),
		StartTime:       r.StartTime.Time,
		DurationMinutes: r.Duration,
	}

	for _, f := range r.RecordingFiles {
		streamType := strings.ToLower(strings.TrimSpace(f.RecordingType))
		if streamType == "" {
			continue
		}
		item.Streams = append(item.Streams, source.Stream{
			Type:        streamType,
			DownloadRef: f.DownloadURL,
			FileType:    f.FileType,
			Start:       f.RecordingStart.Time,
			End:         f.RecordingEnd.Time,
			Size:        f.FileSize,
		})
	}

	return item, nil
}

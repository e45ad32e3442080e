package source

import (
	"testing"
	"time"
)

func TestBestStream(t *testing.T) {
	tests := []struct {
		name     string
		streams  []Stream
		expected string
		found    bool
	}{
		{
			name: "gallery beats active speaker",
			streams: []Stream{
				{Type: TypeActiveSpeaker, DownloadRef: "a"},
				{Type: TypeGalleryView, DownloadRef: "g"},
			},
			expected: "g",
			found:    true,
		},
		{
			name: "shared screen with gallery beats everything",
			streams: []Stream{
				{Type: TypeGalleryView, DownloadRef: "g"},
				{Type: TypeSharedScreenWithSpeakerView, DownloadRef: "s"},
				{Type: TypeSharedScreenWithGalleryView, DownloadRef: "sg"},
			},
			expected: "sg",
			found:    true,
		},
		{
			name: "speaker view beats active speaker",
			streams: []Stream{
				{Type: TypeActiveSpeaker, DownloadRef: "a"},
				{Type: TypeSharedScreenWithSpeakerView, DownloadRef: "s"},
			},
			expected: "s",
			found:    true,
		},
		{
			name: "first match within a tier",
			streams: []Stream{
				{Type: TypeActiveSpeaker, DownloadRef: "a1"},
				{Type: TypeActiveSpeaker, DownloadRef: "a2"},
			},
			expected: "a1",
			found:    true,
		},
		{
			name: "other video streams are not chosen",
			streams: []Stream{
				{Type: TypeAudioOnly, DownloadRef: "audio"},
				{Type: TypeSharedScreen, DownloadRef: "ss"},
				{Type: "speaker_view", DownloadRef: "sv"},
			},
			found: false,
		},
		{
			name:    "shared screen only",
			streams: []Stream{{Type: TypeSharedScreen, DownloadRef: "ss"}},
			found:   false,
		},
		{
			name:    "simple speaker only",
			streams: []Stream{{Type: "active_speaker_simple", DownloadRef: "sp"}},
			found:   false,
		},
		{
			name: "audio and transcript only",
			streams: []Stream{
				{Type: TypeAudioOnly},
				{Type: TypeTimeline},
				{Type: TypeAudioTranscript},
				{Type: TypeChatFile},
				{Type: TypeClosedCaption},
			},
			found: false,
		},
		{
			name:  "no streams",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BestStream(tt.streams)
			if ok != tt.found {
				t.Fatalf("Expected found=%v, got %v", tt.found, ok)
			}
			if ok && got.DownloadRef != tt.expected {
				t.Errorf("Expected stream %q, got %q", tt.expected, got.DownloadRef)
			}
		})
	}
}

func TestVideoStreams(t *testing.T) {
	streams := []Stream{
		{Type: TypeAudioOnly, DownloadRef: "audio"},
		{Type: TypeSharedScreen, DownloadRef: "ss"},
		{Type: TypeChatFile, DownloadRef: "chat"},
		{Type: TypeGalleryView, DownloadRef: "g"},
	}

	videos := VideoStreams(streams)
	if len(videos) != 2 || videos[0].DownloadRef != "ss" || videos[1].DownloadRef != "g" {
		t.Errorf("Expected [ss g], got %+v", videos)
	}
}

func TestIsVideoStream(t *testing.T) {
	tests := map[string]bool{
		TypeActiveSpeaker:   true,
		TypeSharedScreen:    true,
		"gallery_view_2":    true,
		TypeAudioOnly:       false,
		TypeTimeline:        false,
		TypeAudioTranscript: false,
		TypeChatFile:        false,
		TypeClosedCaption:   false,
		"":                  false,
	}

	for streamType, expected := range tests {
		if got := IsVideoStream(streamType); got != expected {
			t.Errorf("IsVideoStream(%q): expected %v, got %v", streamType, expected, got)
		}
	}
}

func TestDurationSeconds(t *testing.T) {
	start := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		item     Item
		stream   Stream
		expected int
	}{
		{"reported minutes", Item{DurationMinutes: 45}, Stream{}, 2700},
		{"fallback to stream span", Item{}, Stream{Start: start, End: start.Add(90 * time.Second)}, 90},
		{"end before start", Item{}, Stream{Start: start, End: start.Add(-time.Minute)}, 0},
		{"nothing known", Item{}, Stream{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DurationSeconds(tt.item, tt.stream); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestItemHelpers(t *testing.T) {
	item := Item{ID: "u1", StartTime: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)}

	if item.DisplayTitle() != DefaultTitle {
		t.Errorf("Expected %q, got %q", DefaultTitle, item.DisplayTitle())
	}
	if item.SourceTimestamp() != "2024-03-01T14:00:00Z" {
		t.Errorf("Expected RFC3339 timestamp, got %q", item.SourceTimestamp())
	}
	if (Item{}).SourceTimestamp() != "" {
		t.Error("Expected empty timestamp for zero start time")
	}
}

// Package source describes recordings as listed by the source platform and
// picks the stream that gets downloaded for each of them
package source

import (
	"time"
)

// Stream types reported by the recording platform
const (
	TypeSharedScreenWithGalleryView = "shared_screen_with_gallery_view"
	TypeGalleryView                 = "gallery_view"
	TypeSharedScreenWithSpeakerView = "shared_screen_with_speaker_view"
	TypeActiveSpeaker               = "active_speaker"
	TypeSharedScreen                = "shared_screen"
	TypeAudioOnly                   = "audio_only"
	TypeTimeline                    = "timeline"
	TypeAudioTranscript             = "audio_transcript"
	TypeChatFile                    = "chat_file"
	TypeClosedCaption               = "closed_caption"
)

// DefaultTitle replaces empty topics
const DefaultTitle = "Untitled Meeting"

// streamPriority lists preferred stream types, best first
var streamPriority = []string{
	TypeSharedScreenWithGalleryView,
	TypeGalleryView,
	TypeSharedScreenWithSpeakerView,
	TypeActiveSpeaker,
}

// Stream is one downloadable file of a recording
type Stream struct {
	Type        string
	DownloadRef string
	FileType    string
	Start       time.Time
	End         time.Time
	Size        int64
}

// Item is a single recorded meeting
type Item struct {
	ID              string
	Title           string
	StartTime       time.Time
	DurationMinutes int
	Streams         []Stream
}

// DisplayTitle returns the title, or DefaultTitle when it is empty
func (i Item) DisplayTitle() string {
	if i.Title == "" {
		return DefaultTitle
	}
	return i.Title
}

// SourceTimestamp formats the start time the way it is stored in the ledger
func (i Item) SourceTimestamp() string {
	if i.StartTime.IsZero() {
		return ""
	}
	return i.StartTime.UTC().Format(time.RFC3339)
}

// IsVideoStream reports whether a stream type carries video
func IsVideoStream(streamType string) bool {
	switch streamType {
	case "", TypeAudioOnly, TypeTimeline, TypeAudioTranscript, TypeChatFile, TypeClosedCaption:
		return false
	default:
		return true
	}
}

// VideoStreams returns the video-bearing streams in their original order
func VideoStreams(streams []Stream) []Stream {
	var videos []Stream
	for _, s := range streams {
		if IsVideoStream(s.Type) {
			videos = append(videos, s)
		}
	}
	return videos
}

// BestStream picks the stream to download. Preferred types win in priority
// order. ok is false when no stream has a preferred type, even if other
// video streams exist.
func BestStream(streams []Stream) (Stream, bool) {
	for _, preferred := range streamPriority {
		for _, s := range streams {
			if s.Type == preferred {
				return s, true
			}
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the item length, falling back to the chosen
// stream's own start and end when the item reports no duration
func DurationSeconds(item Item, chosen Stream) int {
	if item.DurationMinutes > 0 {
		return item.DurationMinutes * 60
	}
	if !chosen.Start.IsZero() && chosen.End.After(chosen.Start) {
		return int(chosen.End.Sub(chosen.Start).Seconds())
	}
	return 0
}

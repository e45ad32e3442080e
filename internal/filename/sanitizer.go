// Package filename derives on-disk folder and file names for downloaded recordings
package filename

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/curtbushko/zoom-to-youtube/internal/source"
)

// DefaultTemplate is used when no folder template is configured
const DefaultTemplate = "{date} {time} - {topic}"

// DefaultMaxLength caps sanitized folder names, counted in runes
const DefaultMaxLength = 200

// FolderNamer builds the per-recording folder and artifact paths
type FolderNamer interface {
	// FolderName renders the template for a meeting and sanitizes the result
	FolderName(start time.Time, topic string) string

	// ArtifactPath returns the folder name and full file path for the chosen stream
	ArtifactPath(baseDir string, item source.Item, stream source.Stream) (string, string)

	// EnsureFolder creates the parent folder of path
	EnsureFolder(path string) error
}

// Options configures a FolderNamer
type Options struct {
	// Template accepts {date}, {time}, {date_time} and {topic}
	Template string

	// MaxLength defaults to DefaultMaxLength
	MaxLength int

	// DefaultTopic defaults to source.DefaultTitle
	DefaultTopic string

	// Now is used when a meeting has no start time
	Now func() time.Time
}

type folderNamer struct {
	template     string
	maxLength    int
	defaultTopic string
	now          func() time.Time
}

// NewFolderNamer creates a FolderNamer with the given options
func NewFolderNamer(options Options) FolderNamer {
	template := options.Template
	if template == "" {
		template = DefaultTemplate
	}

	maxLength := options.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	defaultTopic := options.DefaultTopic
	if defaultTopic == "" {
		defaultTopic = source.DefaultTitle
	}

	now := options.Now
	if now == nil {
		now = time.Now
	}

	return &folderNamer{
		template:     template,
		maxLength:    maxLength,
		defaultTopic: defaultTopic,
		now:          now,
	}
}

func (f *folderNamer) FolderName(start time.Time, topic string) string {
	if start.IsZero() {
		start = f.now()
	}
	if strings.TrimSpace(topic) == "" {
		topic = f.defaultTopic
	}

	date := start.Format("2006-01-02")
	clock := start.Format("15-04")

	replacer := strings.NewReplacer(
		"{date_time}", date+" "+clock,
		"{date}", date,
		"{time}", clock,
		"{topic}", topic,
	)

	name := Sanitize(replacer.Replace(f.template), f.maxLength)
	if name == "" {
		return Sanitize(f.defaultTopic, f.maxLength)
	}
	return name
}

func (f *folderNamer) ArtifactPath(baseDir string, item source.Item, stream source.Stream) (string, string) {
	folder := f.FolderName(item.StartTime, item.Title)
	return folder, filepath.Join(baseDir, folder, FileName(stream))
}

func (f *folderNamer) EnsureFolder(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// FileName is the stream type with an .mp4 extension
func FileName(stream source.Stream) string {
	name := stream.Type
	if name == "" {
		name = "video"
	}
	return Sanitize(name, DefaultMaxLength) + ".mp4"
}

var invalidChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_",
	"/", "_", "\\", "_", "|", "_", "?", "_", "*", "_",
)

// Sanitize makes a name safe for common filesystems: unicode is NFC
// normalized, control characters are dropped, reserved characters become
// underscores, and leading or trailing spaces and dots are trimmed
func Sanitize(name string, maxLength int) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.Cc)))
	normalized, _, err := transform.String(t, name)
	if err != nil {
		normalized = name
	}

	cleaned := strings.Trim(invalidChars.Replace(normalized), " .")

	if maxLength > 0 {
		r := []rune(cleaned)
		if len(r) > maxLength {
			cleaned = strings.TrimRight(string(r[:maxLength]), " .")
		}
	}

	return cleaned
}

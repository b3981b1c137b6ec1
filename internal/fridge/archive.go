package fridge

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Archive keeps original receipt images after a successful scan
type Archive interface {
	// Store saves a receipt image and returns the stored filename
	Store(uid string, contentType string, data []byte) (string, error)
}

// LocalArchive implements the Archive interface using local filesystem
type LocalArchive struct {
	basePath   string
	timeSource TimeSource
}

// NewLocalArchive creates a new LocalArchive instance
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	return &LocalArchive{
		basePath:   basePath,
		timeSource: &defaultTimeSource{},
	}, nil
}

// NewLocalArchiveWithDeps creates a LocalArchive with a custom time source for testing
func NewLocalArchiveWithDeps(basePath string, timeSource TimeSource) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	return &LocalArchive{
		basePath:   basePath,
		timeSource: timeSource,
	}, nil
}

// sanitizeUID cleans up a uid so it is safe to use in a filename
func sanitizeUID(uid string) string {
	reg := regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	clean := reg.ReplaceAllString(uid, "_")

	// Truncate to reasonable length
	maxLen := 50
	if len(clean) > maxLen {
		clean = clean[:maxLen]
	}

	if clean == "" {
		clean = "fridge"
	}

	return clean
}

// Store writes the image under a uid-and-timestamp name
func (l *LocalArchive) Store(uid string, contentType string, data []byte) (string, error) {
	stamp := l.timeSource.Now().UTC().Format("20060102T150405")
	filename := fmt.Sprintf("%s_%s%s", sanitizeUID(uid), stamp, extensionForMIME(contentType))

	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

func extensionForMIME(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	default:
		return ".bin"
	}
}

package utils

import "github.com/google/uuid"

// NewID returns a random UUID v4 string.
func NewID() string {
	return uuid.NewString()
}

// RecordingFileName returns a unique file name for a capture with the given extension.
func RecordingFileName(ext string) string {
	return "mousai-" + uuid.NewString() + "." + ext
}

package storage

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
)

const dataURIPrefix = "data:"

// NarrationKey returns the storage key of an episode narration track.
// Episode numbers are 1-based.
func NarrationKey(courseID string, episode int) string {
	return fmt.Sprintf("courses/%s/episode-%d/narration.mp3", courseID, episode)
}

// VideoKey returns the storage key of an episode video
func VideoKey(courseID string, episode int) string {
	return fmt.Sprintf("courses/%s/episode-%d/video.mp4", courseID, episode)
}

// PhotoKey returns the storage key of a course reference image
func PhotoKey(courseID string, index int, contentType string) string {
	return fmt.Sprintf("courses/%s/photos/%d%s", courseID, index, ExtensionForContentType(contentType))
}

// ValidateKey rejects keys that are empty, absolute, or not in canonical form.
// A key with "." or ".." segments could resolve outside its course prefix.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || key == ".." || strings.HasPrefix(key, "../") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}

// ExtensionForContentType maps common media types to a file extension
func ExtensionForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}

// DataURI encodes data as an inline base64 data URI
func DataURI(contentType string, data []byte) string {
	return dataURIPrefix + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsDataURI reports whether ref is an inline data URI rather than a durable URL
func IsDataURI(ref string) bool {
	return strings.HasPrefix(ref, dataURIPrefix)
}

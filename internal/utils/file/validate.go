// Package file classifies intake files by suffix and resolves MIME types.
package file

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the media category a file belongs to.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindUnknown Kind = ""
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".webp": {}, ".heic": {}, ".heif": {}, ".dng": {},
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {},
	".wmv": {}, ".flv": {}, ".webm": {},
}

var extensionMimeTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".webp": "image/webp", ".heic": "image/heic",
	".heif": "image/heif", ".dng": "image/dng",
	".mp4": "video/mp4", ".avi": "video/avi", ".mov": "video/quicktime",
	".mkv": "video/x-matroska", ".wmv": "video/x-ms-wmv",
	".flv": "video/x-flv", ".webm": "video/webm",
}

// Classify returns the media kind for a filename, matching the intake
// extension whitelists case-insensitively.
func Classify(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return KindVideo
	}
	return KindUnknown
}

// MimeType resolves the MIME type by content sniffing, falling back to
// the extension map when detection is unavailable or inconclusive.
func MimeType(path string) string {
	if detected, err := mimetype.DetectFile(path); err == nil {
		mime := detected.String()
		if mime != "" && mime != "application/octet-stream" {
			return mime
		}
	}
	return MimeTypeFromExtension(path)
}

// MimeTypeFromExtension maps a filename suffix to its MIME type.
func MimeTypeFromExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := extensionMimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Package listing parses directory-listing output captured from a share
// into typed file entries and filters them by media category and date.
package listing

import (
	"path"
	"strings"
)

// FileEntry is one row of a directory listing.
// Entries are produced fresh on every listing call and never mutated.
type FileEntry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        uint64 `json:"size"` // 0 for directories
	Modified    string `json:"modified"`
	Path        string `json:"path"`
}

// Category is a media category derived from a file extension.
type Category string

const (
	Image    Category = "image"
	Video    Category = "video"
	Audio    Category = "audio"
	Document Category = "document"
	Other    Category = "other"
)

// Categories lists every category in classification order.
var Categories = []Category{Image, Video, Audio, Document, Other}

var extensionCategories = map[string]Category{
	"jpg": Image, "jpeg": Image, "png": Image, "gif": Image, "bmp": Image, "webp": Image,
	"mp4": Video, "avi": Video, "mkv": Video, "mov": Video, "wmv": Video,
	"mp3": Audio, "wav": Audio, "flac": Audio, "aac": Audio,
	"pdf": Document, "doc": Document, "docx": Document, "txt": Document, "rtf": Document,
}

// ParseCategory returns the category named by s, or false.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// CategoryOf classifies a file name by its extension, case-insensitively.
// Names with no known extension are Other.
func CategoryOf(name string) Category {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if c, ok := extensionCategories[ext]; ok {
		return c
	}
	return Other
}

// JoinPath joins a share-relative directory and an entry name the way the
// share expects (backslash separated).
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimRight(dir, `\/`) + `\` + name
}

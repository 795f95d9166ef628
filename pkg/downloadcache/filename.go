package downloadcache

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wbip/wbip/pkg/models"
)

const maxFilenameTitleBytes = 120

// invalidFilenameChars contains characters that are not allowed in filenames
// across Windows, macOS, and Linux.
var invalidFilenameChars = []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}

// FormatDownloadFilename generates the filename offered to the client for a
// bookmark's book: the sanitized title, or the bookmark ID when the title has
// nothing usable.
func FormatDownloadFilename(bookmark *models.Bookmark) string {
	title := truncateUTF8(sanitizeFilename(bookmark.Title), maxFilenameTitleBytes)
	if title == "" {
		title = strconv.FormatInt(bookmark.ID, 10)
	}
	return title + bookExt
}

// sanitizeFilename removes or replaces characters that are not valid in filenames.
func sanitizeFilename(s string) string {
	result := s
	for _, char := range invalidFilenameChars {
		result = strings.ReplaceAll(result, char, "")
	}
	result = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, result)
	// Also trim leading/trailing whitespace and collapse multiple spaces
	result = strings.TrimSpace(result)
	for strings.Contains(result, "  ") {
		result = strings.ReplaceAll(result, "  ", " ")
	}
	return strings.Trim(result, ".")
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimSpace(s)
}

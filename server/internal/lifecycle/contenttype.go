package lifecycle

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

const defaultContentType = "application/octet-stream"

// ContentTypeFor derives a content type from the extension of filename, falling back to a generic binary type.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return defaultContentType
	}
	if kind := filetype.GetType(ext); kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return defaultContentType
}

// contentDisposition asks clients to display the file inline under its original name.
func contentDisposition(filename string) string {
	if cd := mime.FormatMediaType("inline", map[string]string{"filename": filename}); cd != "" {
		return cd
	}
	return "inline"
}

package files

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

// FormatFileSize formats a file size in bytes to a human-readable string.
func FormatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// sniffLen is how many leading bytes http.DetectContentType looks at.
const sniffLen = 512

// contentTypeOf picks the MIME type for an uploaded part: the type the
// client declared, then one implied by the file extension, then a sniff of
// the first bytes. The part is read with ReadAt so its offset is unchanged.
func contentTypeOf(header *multipart.FileHeader, f io.ReaderAt) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(header.Filename)); ct != "" {
		return ct
	}

	buf := make([]byte, sniffLen)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return "application/octet-stream"
	}
	return http.DetectContentType(buf[:n])
}

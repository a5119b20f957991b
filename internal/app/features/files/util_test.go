package files

import (
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero bytes", 0, "0 B"},
		{"1023 bytes", 1023, "1023 B"},
		{"1 KB", 1024, "1.0 KB"},
		{"1.5 MB", 1572864, "1.5 MB"},
		{"250 MB quota", 262144000, "250.0 MB"},
		{"1.5 GB", 1610612736, "1.5 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatFileSize(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatFileSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestContentTypeOf(t *testing.T) {
	header := func(name, ct string) *multipart.FileHeader {
		h := textproto.MIMEHeader{}
		if ct != "" {
			h.Set("Content-Type", ct)
		}
		return &multipart.FileHeader{Filename: name, Header: h}
	}

	tests := []struct {
		name   string
		header *multipart.FileHeader
		body   string
		want   string
	}{
		{"declared type wins", header("a.bin", "image/png"), "xyz", "image/png"},
		{"extension", header("notes.pdf", ""), "xyz", "application/pdf"},
		{"octet-stream falls through to extension", header("page.pdf", "application/octet-stream"), "xyz", "application/pdf"},
		{"sniffed html", header("noext", ""), "<html><body>hi</body></html>", "text/html; charset=utf-8"},
		{"empty body", header("noext", ""), "", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := contentTypeOf(tt.header, strings.NewReader(tt.body))
			if got != tt.want {
				t.Errorf("contentTypeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

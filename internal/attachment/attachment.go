// Package attachment enforces the upload size ceiling and content-type
// allow-list.
package attachment

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/garnizeh/intake/internal/errs"
)

// MaxSize is the largest accepted upload, inclusive.
const MaxSize = 5 * 1024 * 1024

// SniffLen is how many leading bytes Detect needs.
const SniffLen = 3072

const octetStream = "application/octet-stream"

var allowed = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// Allowed returns the accepted media types.
func Allowed() []string {
	out := make([]string, 0, len(allowed))
	for t := range allowed {
		out = append(out, t)
	}
	return out
}

// Normalize strips media-type parameters and lowercases the type.
func Normalize(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Validate checks size first, then the content type.
func Validate(size int64, contentType string) error {
	if size > MaxSize {
		return errs.Invalid("file", fmt.Sprintf("size: %d bytes exceeds the %d byte limit", size, MaxSize))
	}
	if size < 0 {
		return errs.Invalid("file", "size: unknown file size")
	}
	mt := Normalize(contentType)
	if !allowed[mt] {
		if mt == "" {
			mt = "unknown"
		}
		return errs.Invalid("file", fmt.Sprintf("content_type: %s is not allowed", mt))
	}
	return nil
}

// Detect returns the declared type, or the type sniffed from head when the
// client declared none or a generic binary type.
func Detect(declared string, head []byte) string {
	mt := Normalize(declared)
	if mt != "" && mt != octetStream {
		return mt
	}
	if len(head) == 0 {
		return mt
	}
	return Normalize(mimetype.Detect(head).String())
}

// Check resolves the content type with Detect and validates it with size.
func Check(size int64, declared string, head []byte) (string, error) {
	if size > MaxSize {
		return "", Validate(size, declared)
	}
	ct := Detect(declared, head)
	if err := Validate(size, ct); err != nil {
		return "", err
	}
	return ct, nil
}

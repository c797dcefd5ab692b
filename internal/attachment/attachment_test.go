package attachment_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/garnizeh/intake/internal/attachment"
	"github.com/garnizeh/intake/internal/errs"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func fieldMsg(t *testing.T, err error) string {
	t.Helper()
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ErrValidation kind")
	}
	return ve.Fields["file"]
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		size    int64
		ct      string
		wantErr string
	}{
		{"png 1KiB", 1024, "image/png", ""},
		{"pdf at limit", attachment.MaxSize, "application/pdf", ""},
		{"text with charset", 10, "text/plain; charset=utf-8", ""},
		{"docx", 10, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ""},
		{"uppercase type", 10, "IMAGE/JPEG", ""},
		{"zip 1KiB", 1024, "application/zip", "content_type"},
		{"empty type", 1024, "", "content_type"},
		{"6MiB png", 6 * 1024 * 1024, "image/png", "size"},
		{"6MiB zip reports size", 6 * 1024 * 1024, "application/zip", "size"},
		{"one byte over", attachment.MaxSize + 1, "image/png", "size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := attachment.Validate(tc.size, tc.ct)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if msg := fieldMsg(t, err); !strings.HasPrefix(msg, tc.wantErr) {
				t.Fatalf("expected %s violation, got %q", tc.wantErr, msg)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	if got := attachment.Detect("", pngHeader); got != "image/png" {
		t.Fatalf("expected sniffed png, got %q", got)
	}
	if got := attachment.Detect("application/octet-stream", []byte("%PDF-1.7\n")); got != "application/pdf" {
		t.Fatalf("expected sniffed pdf, got %q", got)
	}
	if got := attachment.Detect("text/plain; charset=utf-8", pngHeader); got != "text/plain" {
		t.Fatalf("declared type must win, got %q", got)
	}
	if got := attachment.Detect("", nil); got != "" {
		t.Fatalf("expected empty type without content, got %q", got)
	}
}

func TestCheck(t *testing.T) {
	ct, err := attachment.Check(int64(len(pngHeader)), "", pngHeader)
	if err != nil || ct != "image/png" {
		t.Fatalf("expected png accepted, got %q %v", ct, err)
	}

	zip := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0}, 1020)...)
	if _, err := attachment.Check(1024, "", zip); err == nil {
		t.Fatalf("expected sniffed zip to be rejected")
	}

	_, err = attachment.Check(6*1024*1024, "", pngHeader)
	if msg := fieldMsg(t, err); !strings.HasPrefix(msg, "size") {
		t.Fatalf("expected size violation first, got %q", msg)
	}
}

// Package storage keeps attachment bytes on local disk or in a GCS bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/garnizeh/intake/internal/errs"
)

// ErrNoURL is returned by Store.URL when the backend cannot serve a direct
// download link.
var ErrNoURL = errors.New("storage: backend has no public url")

// Object is an open stored file.
type Object struct {
	Body io.ReadCloser
	// Size is -1 when unknown.
	Size int64
}

// Store persists attachment bytes.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	// URL returns a link that downloads key as filename.
	URL(ctx context.Context, key, filename string) (string, error)
}

// NewKey builds a unique storage key that keeps the original file name.
func NewKey(filename string) string {
	return "attachments/" + uuid.NewString() + "/" + SafeName(filename)
}

// SafeName reduces a client file name to its last path element.
func SafeName(filename string) string {
	name := strings.ReplaceAll(filename, `\`, "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "file"
	}
	return name
}

// Disposition returns an attachment Content-Disposition value for filename.
func Disposition(filename string) string {
	v := mime.FormatMediaType("attachment", map[string]string{"filename": SafeName(filename)})
	if v == "" {
		return "attachment"
	}
	return v
}

func notFound(key string) error {
	return fmt.Errorf("%w: stored object %s", errs.ErrNotFound, key)
}

// checkKey rejects keys that could leave the store root. Dots inside a file
// name are fine; only whole "." or ".." segments are traversal.
func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("storage: invalid key %q", key)
		}
	}
	return nil
}

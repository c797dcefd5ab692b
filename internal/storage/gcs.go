package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client    *storage.Client
	bucket    string
	signedTTL time.Duration
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore opens a client. credentialsFile may be empty to use ambient
// credentials (GOOGLE_APPLICATION_CREDENTIALS or metadata server).
func NewGCSStore(ctx context.Context, bucket, credentialsFile string, signedTTL time.Duration) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("storage: gcs bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	if signedTTL <= 0 {
		signedTTL = 15 * time.Minute
	}
	return &GCSStore{client: client, bucket: bucket, signedTTL: signedTTL}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("storage: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: gcs close: %w", err)
	}
	return nil
}

func (s *GCSStore) Open(ctx context.Context, key string) (*Object, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("storage: gcs read: %w", err)
	}
	return &Object{Body: rc, Size: rc.Attrs.Size}, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return notFound(key)
		}
		return fmt.Errorf("storage: gcs delete: %w", err)
	}
	return nil
}

// URL returns a V4 signed link that forces attachment disposition. The object
// is checked first so a dangling row answers not found.
func (s *GCSStore) URL(ctx context.Context, key, filename string) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", notFound(key)
		}
		return "", fmt.Errorf("storage: gcs attrs: %w", err)
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.signedTTL),
		QueryParameters: url.Values{
			"response-content-disposition": {Disposition(filename)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign url: %w", err)
	}
	return u, nil
}

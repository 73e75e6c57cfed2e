package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Uploader writes exported objects to Cloud Storage.
type Uploader struct {
	newWriter func(ctx context.Context, bucket, object, contentType string) io.WriteCloser
}

// NewUploader constructs an Uploader backed by the provided Cloud Storage client.
func NewUploader(client *gcs.Client) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	return &Uploader{
		newWriter: func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
			w := client.Bucket(bucket).Object(object).NewWriter(ctx)
			w.ContentType = contentType
			return w
		},
	}, nil
}

// Upload streams body into bucket/object. The object only becomes visible once the
// writer is closed without error.
func (u *Uploader) Upload(ctx context.Context, bucket, object, contentType string, body io.Reader) (int64, error) {
	if u == nil || u.newWriter == nil {
		return 0, errors.New("storage uploader: client is not initialised")
	}
	bucket = strings.TrimSpace(bucket)
	object = strings.TrimSpace(object)
	if bucket == "" || object == "" {
		return 0, errors.New("storage uploader: bucket and object must be provided")
	}
	if body == nil {
		return 0, errors.New("storage uploader: body is required")
	}

	w := u.newWriter(ctx, bucket, object, contentType)
	n, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return n, fmt.Errorf("storage uploader: write %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("storage uploader: finalise %s/%s: %w", bucket, object, err)
	}
	return n, nil
}

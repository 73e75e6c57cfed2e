package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newFakeUploader(w *fakeWriter, seen *[]string) *Uploader {
	return &Uploader{newWriter: func(_ context.Context, bucket, object, contentType string) io.WriteCloser {
		*seen = append(*seen, bucket, object, contentType)
		return w
	}}
}

func TestUploadWritesAndCloses(t *testing.T) {
	w := &fakeWriter{}
	var seen []string
	u := newFakeUploader(w, &seen)

	n, err := u.Upload(context.Background(), " exports ", "exports/adm_1/metrics/2025/r.xlsx", "application/x", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if n != 7 || w.String() != "payload" || !w.closed {
		t.Fatalf("unexpected write n=%d body=%q closed=%v", n, w.String(), w.closed)
	}
	if seen[0] != "exports" || seen[2] != "application/x" {
		t.Fatalf("unexpected writer args %v", seen)
	}
}

func TestUploadSurfacesFinaliseError(t *testing.T) {
	w := &fakeWriter{closeErr: errors.New("precondition failed")}
	var seen []string
	u := newFakeUploader(w, &seen)

	if _, err := u.Upload(context.Background(), "b", "o", "", strings.NewReader("x")); err == nil {
		t.Fatalf("expected close error")
	}
}

func TestUploadValidatesArguments(t *testing.T) {
	var seen []string
	u := newFakeUploader(&fakeWriter{}, &seen)
	if _, err := u.Upload(context.Background(), "", "o", "", strings.NewReader("x")); err == nil {
		t.Fatalf("expected bucket error")
	}
	if _, err := u.Upload(context.Background(), "b", "o", "", nil); err == nil {
		t.Fatalf("expected body error")
	}
	if len(seen) != 0 {
		t.Fatalf("writer must not be opened on invalid input")
	}
	if _, err := NewUploader(nil); err == nil {
		t.Fatalf("expected client error")
	}
}

// Package gcsuploader stores and fetches receipt images in Google Cloud
// Storage.
package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// maxImageBytes caps downloads so a wrong URI cannot exhaust memory.
const maxImageBytes = 20 << 20

// ImageStore reads and writes receipt images through one storage client.
type ImageStore struct {
	client *storage.Client
	bucket string
}

// NewImageStore uses Application Default Credentials. bucket is the
// default upload target.
func NewImageStore(ctx context.Context, bucket string) (*ImageStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewImageStore: creating storage client: %w", err)
	}
	return &ImageStore{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (s *ImageStore) Close() error {
	return s.client.Close()
}

// UploadFile stores a local image under receipts/<uuid><ext> and returns
// its gs:// URI.
func (s *ImageStore) UploadFile(ctx context.Context, filePath string) (string, error) {
	if s.bucket == "" {
		return "", fmt.Errorf("UploadFile: no bucket configured")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(filePath))
	objectName := "receipts/" + uuid.NewString() + ext

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = ContentTypeFor(filePath, nil)
	w.Metadata = map[string]string{"original_filename": filepath.Base(filePath)}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("UploadFile: copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("UploadFile: finalize upload: %w", err)
	}

	return "gs://" + s.bucket + "/" + objectName, nil
}

// Fetch downloads gsURI and reports its content type.
func (s *ImageStore) Fetch(ctx context.Context, gsURI string) ([]byte, string, error) {
	bucket, object, err := ParseURI(gsURI)
	if err != nil {
		return nil, "", fmt.Errorf("Fetch: %w", err)
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	if rc.Attrs.Size > maxImageBytes {
		return nil, "", fmt.Errorf("Fetch: object %s is %d bytes, limit %d", gsURI, rc.Attrs.Size, maxImageBytes)
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("Fetch: object %s exceeds %d bytes", gsURI, maxImageBytes)
	}

	contentType := rc.Attrs.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentTypeFor(object, data)
	}
	return data, contentType, nil
}

// ParseURI splits gs://bucket/object.
func ParseURI(gsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gsURI)
	}
	return parts[0], parts[1], nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/receipt.jpg" → "receipt.jpg"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// ContentTypeFor guesses from the extension, then from the bytes.
func ContentTypeFor(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}

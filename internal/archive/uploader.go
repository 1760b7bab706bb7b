// Package archive copies the history journal to Google Cloud Storage and back.
package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Uploader provides an interface for object storage operations.
// This interface enables mocking and testing of archive functionality.
type Uploader interface {
	// Upload writes r to bucket/object, replacing any existing object.
	Upload(ctx context.Context, bucket, object string, r io.Reader) error

	// Fetch downloads the object named by a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// GCSUploader is the Uploader backed by Google Cloud Storage.
type GCSUploader struct {
	opts    []option.ClientOption
	timeout time.Duration
}

// NewGCSUploader creates a GCSUploader. An empty credentialsFile uses
// Application Default Credentials (gcloud auth application-default login).
func NewGCSUploader(credentialsFile string) *GCSUploader {
	u := &GCSUploader{timeout: 2 * time.Minute}
	if credentialsFile != "" {
		u.opts = append(u.opts, option.WithCredentialsFile(credentialsFile))
	}
	return u
}

// Upload implements Uploader.
func (u *GCSUploader) Upload(ctx context.Context, bucket, object string, r io.Reader) error {
	client, err := storage.NewClient(ctx, u.opts...)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Fetch implements Uploader.
func (u *GCSUploader) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, u.opts...)
	if err != nil {
		return nil, fmt.Errorf("Fetch: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// Ensure GCSUploader implements Uploader interface.
var _ Uploader = (*GCSUploader)(nil)

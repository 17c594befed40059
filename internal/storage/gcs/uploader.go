// Package gcs uploads readout artifacts to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// Uploader writes objects into a single GCS bucket.
type Uploader struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// New initializes a GCS client and verifies the bucket is reachable.
// Authentication is handled via Application Default Credentials.
func New(ctx context.Context, bucketName string, logger *zap.Logger) (*Uploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	// Fail fast on startup if the bucket is missing or inaccessible.
	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("failed to close gcs client after bucket check", zap.Error(cerr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucketName, err)
	}

	return &Uploader{client: client, bucket: bucketName, logger: logger}, nil
}

// Save uploads data to the named object in the bucket.
func (u *Uploader) Save(ctx context.Context, objectName string, data []byte) error {
	wc := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)

	if _, err := wc.Write(data); err != nil {
		if cerr := wc.Close(); cerr != nil {
			u.logger.Warn("failed to close gcs writer after write failure", zap.Error(cerr))
		}
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}

	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close gcs writer for object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (u *Uploader) Close() error {
	return u.client.Close()
}

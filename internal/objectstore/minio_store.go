// Package objectstore moves photo bytes between the primary bucket, the backup bucket and
// clients, and encrypts content at rest.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/abduss/photovault/internal/config"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// ErrObjectNotFound is returned when a key has no object behind it.
var ErrObjectNotFound = errors.New("object not found")

// MinIOStore adapts minio.Client to the byte store, backup transport and presigner used by
// the photo service.
type MinIOStore struct {
	client       *minio.Client
	bucket       string
	backupBucket string
	presignTTL   time.Duration
}

// NewMinIOStore constructs an adapter.
func NewMinIOStore(client *minio.Client, cfg config.MinIOConfig) *MinIOStore {
	return &MinIOStore{
		client:       client,
		bucket:       cfg.Bucket,
		backupBucket: cfg.BackupBucket,
		presignTTL:   cfg.PresignTTL,
	}
}

// ObjectKey derives a fresh, unique key for a photo of ownerID.
func ObjectKey(ownerID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s%s", ownerID, uuid.New(), path.Ext(filename))
}

func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", translate(err))
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller starts reading.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat object: %w", translate(err))
	}
	return obj, nil
}

func (s *MinIOStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Backup copies key into the backup bucket and returns the backup path.
func (s *MinIOStore) Backup(ctx context.Context, key string) (string, error) {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.backupBucket, Object: key},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return "", fmt.Errorf("copy to backup: %w", translate(err))
	}
	return s.backupBucket + "/" + key, nil
}

// RemoveBackup deletes a copy made by Backup.
func (s *MinIOStore) RemoveBackup(ctx context.Context, backupPath string) error {
	bucket, object, ok := splitBackupPath(backupPath)
	if !ok {
		return fmt.Errorf("remove backup: malformed backup path %q", backupPath)
	}
	if err := s.client.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove backup: %w", err)
	}
	return nil
}

// Restore copies a backup made by Backup over key in the primary bucket.
func (s *MinIOStore) Restore(ctx context.Context, backupPath, key string) error {
	bucket, object, ok := splitBackupPath(backupPath)
	if !ok {
		return fmt.Errorf("restore: malformed backup path %q", backupPath)
	}
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: key},
		minio.CopySrcOptions{Bucket: bucket, Object: object},
	)
	if err != nil {
		return fmt.Errorf("copy from backup: %w", translate(err))
	}
	return nil
}

// PresignGet returns a time-limited download URL for key.
func (s *MinIOStore) PresignGet(ctx context.Context, key, filename string) (string, time.Time, error) {
	params := make(url.Values)
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, params)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign get: %w", err)
	}
	return u.String(), time.Now().Add(s.presignTTL), nil
}

func splitBackupPath(p string) (string, string, bool) {
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if i == 0 || i == len(p)-1 {
				return "", "", false
			}
			return p[:i], p[i+1:], true
		}
	}
	return "", "", false
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return err
}

// Package backup snapshots the database on a cron schedule, uploads the
// snapshot to S3-compatible object storage, and prunes old snapshots.
package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/config"
)

// StoredObject describes one uploaded snapshot
type StoredObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the object storage surface the scheduler needs
type ObjectStore interface {
	Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Remove(ctx context.Context, key string) error
	Health(ctx context.Context) error
}

// S3Store is the MinIO-backed ObjectStore. It works with AWS S3, MinIO, and
// other S3-compatible services.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store creates the object store client from backup config
func NewS3Store(cfg config.BackupConfig) (*S3Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}

	log.Info().
		Str("endpoint", cfg.S3Endpoint).
		Str("bucket", cfg.S3Bucket).
		Bool("ssl", cfg.S3UseSSL).
		Msg("Backup object store initialized")

	return &S3Store{client: client, bucket: cfg.S3Bucket}, nil
}

// Upload puts one object
func (s *S3Store) Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// List returns the objects under a prefix
func (s *S3Store) List(ctx context.Context, prefix string) ([]StoredObject, error) {
	var out []StoredObject
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, obj.Err)
		}
		out = append(out, StoredObject{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

// Remove deletes one object
func (s *S3Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Health verifies the bucket is reachable
func (s *S3Store) Health(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("backup store health: %w", err)
	}
	if !ok {
		return fmt.Errorf("backup bucket %q does not exist", s.bucket)
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3KeyPrefix = "staging/"

// s3Stager stages uploads in a bucket and gives the viewer a presigned GET URL.
// The viewer must accept cross-origin file URLs for this backend to work.
type s3Stager struct {
	client        *minio.Client
	bucketName    string
	presignExpiry time.Duration
}

func NewS3Stager(cfg *config.Config) (Stager, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	// Ensure bucket exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.S3BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.S3BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &s3Stager{
		client:        client,
		bucketName:    cfg.S3BucketName,
		presignExpiry: cfg.S3PresignExpiry,
	}, nil
}

func (s *s3Stager) Stage(ctx context.Context, name string, data []byte) (*StagedFile, error) {
	stagedName := StagedName(name)
	key := s3KeyPrefix + stagedName

	_, err := s.client.PutObject(
		ctx,
		s.bucketName,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: "application/pdf",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	info, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		_ = s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
		return nil, fmt.Errorf("staged object was not written successfully: %s: %w", key, err)
	}
	if info.Size != int64(len(data)) {
		_ = s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
		return nil, fmt.Errorf("staged object size mismatch: wrote %d bytes, found %d", len(data), info.Size)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presignExpiry, url.Values{})
	if err != nil {
		_ = s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
		return nil, fmt.Errorf("failed to presign staged object: %w", err)
	}

	return &StagedFile{
		Name: key,
		URL:  presigned.String(),
		Size: info.Size,
	}, nil
}

func (s *s3Stager) Remove(ctx context.Context, file *StagedFile) error {
	if file == nil || file.Name == "" {
		return nil
	}
	err := s.client.RemoveObject(ctx, s.bucketName, file.Name, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

func (s *s3Stager) Exists(ctx context.Context, file *StagedFile) (bool, error) {
	if file == nil || file.Name == "" {
		return false, nil
	}
	_, err := s.client.StatObject(ctx, s.bucketName, file.Name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat staged object: %w", err)
}

func (s *s3Stager) CleanStale(ctx context.Context, maxAge time.Duration) CleanStaleResult {
	result := CleanStaleResult{}
	cutoff := time.Now().Add(-maxAge)

	objects := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    s3KeyPrefix + StagedPrefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			result.Errors = append(result.Errors, CleanupError{Name: s.bucketName, Error: obj.Err})
			continue
		}
		if !strings.HasPrefix(obj.Key, s3KeyPrefix) || !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			result.Errors = append(result.Errors, CleanupError{Name: obj.Key, Error: err})
			continue
		}
		result.Removed = append(result.Removed, obj.Key)
	}

	return result
}

package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"torb/config"
	"torb/logger"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and makes sure the configured
// bucket exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	logger.Info("connected to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
	)
	return nil
}

// GetMinioClient returns the shared client, or nil when MinIO is disabled.
func GetMinioClient() *minio.Client {
	return minioClient
}

// ContentTypeFor maps HLS artifact names to their media types.
func ContentTypeFor(objectPath string) string {
	switch {
	case strings.HasSuffix(objectPath, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	case strings.HasSuffix(objectPath, ".ts"):
		return "video/MP2T"
	case strings.HasSuffix(objectPath, ".jpg"), strings.HasSuffix(objectPath, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// PublishDir uploads every file under localDir to the bucket beneath
// prefix, preserving the relative layout. It is used to mirror a finished
// track's HLS tree to object storage.
func PublishDir(ctx context.Context, bucket, prefix, localDir string) error {
	if minioClient == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	return filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		objectName := prefix + "/" + filepath.ToSlash(rel)

		_, err = minioClient.FPutObject(ctx, bucket, objectName, path, minio.PutObjectOptions{
			ContentType: ContentTypeFor(objectName),
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", objectName, err)
		}
		return nil
	})
}

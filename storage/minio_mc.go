package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketStats summarizes the contents of a bucket prefix.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// MinioClient wraps a minio.Client for bucket inspection from the CLI.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient creates a standalone client for bucket inspection.
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Stats walks the given prefix and returns object count, total size and
// the newest modification time.
func (m *MinioClient) Stats(ctx context.Context, prefix string) (*BucketStats, error) {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", m.bucketName, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", m.bucketName)
	}

	stats := &BucketStats{}
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return stats, nil
}

// PrintTree prints the published HLS trees under the given prefix, one
// line per object, grouped by track directory.
func (m *MinioClient) PrintTree(ctx context.Context, prefix string) error {
	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	byDir := make(map[string][]minio.ObjectInfo)
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("failed to list objects: %w", object.Err)
		}
		dir := ""
		if idx := strings.LastIndex(object.Key, "/"); idx >= 0 {
			dir = object.Key[:idx]
		}
		byDir[dir] = append(byDir[dir], object)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		if dir != "" {
			fmt.Printf("%s/\n", dir)
		}
		for _, obj := range byDir[dir] {
			name := obj.Key
			if dir != "" {
				name = strings.TrimPrefix(obj.Key, dir+"/")
			}
			fmt.Printf("  %s  %s\n", FormatSize(obj.Size), name)
		}
	}
	return nil
}

// FormatSize renders a byte count for humans.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

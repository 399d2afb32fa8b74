// Package archive writes published policy configurations to S3-compatible
// object storage. Finance and compliance pull old policies from here without
// touching the application database.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Service struct {
	client *minio.Client
	bucket string
}

// Entry describes one archived policy object.
type Entry struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// StorePolicy archives one published policy configuration as JSON.
func (s *Service) StorePolicy(ctx context.Context, projectID string, version int, config []byte) error {
	key := policyKey(projectID, version)
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(config), int64(len(config)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archive policy %s: %w", key, err)
	}
	return nil
}

// FetchPolicy returns the archived configuration for one version.
func (s *Service) FetchPolicy(ctx context.Context, projectID string, version int) ([]byte, error) {
	key := policyKey(projectID, version)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch policy %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", key, err)
	}
	return data, nil
}

// ListPolicies lists the archived versions for a project, newest key last.
func (s *Service) ListPolicies(ctx context.Context, projectID string) ([]Entry, error) {
	prefix := fmt.Sprintf("policies/%s/", projectID)
	entries := make([]Entry, 0)
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list policies: %w", info.Err)
		}
		entries = append(entries, Entry{
			Key:        info.Key,
			Size:       info.Size,
			ArchivedAt: info.LastModified,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func policyKey(projectID string, version int) string {
	return fmt.Sprintf("policies/%s/v%04d.json", projectID, version)
}

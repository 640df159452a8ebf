package service

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"interview_server/server/common/infra/object"
	"interview_server/server/fileman/domain"
)

type BlobInfo struct {
	Size        int64
	ContentType string
}

// BlobStore adapts the MinIO client to the binary-store contract: opaque
// 24-hex object ids, chunked writes managed by the store, immutable objects.
type BlobStore struct {
	client *minio.Client
	bucket string
}

func NewBlobStore(client *minio.Client, bucket string) *BlobStore {
	return &BlobStore{client: client, bucket: bucket}
}

func (s *BlobStore) Put(ctx context.Context, objectID string, r io.Reader, size int64, contentType string, meta map[string]string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectID, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectID, err)
	}
	return nil
}

// Open returns a read stream for the object. The stat round-trip runs first
// so a missing blob surfaces as ErrBlobMissing before any bytes are sent.
func (s *BlobStore) Open(ctx context.Context, objectID string) (io.ReadCloser, BlobInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectID, minio.GetObjectOptions{})
	if err != nil {
		return nil, BlobInfo{}, fmt.Errorf("open object %s: %w", objectID, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if object.IsNotFound(err) {
			return nil, BlobInfo{}, domain.ErrBlobMissing
		}
		return nil, BlobInfo{}, fmt.Errorf("stat object %s: %w", objectID, err)
	}
	return obj, BlobInfo{Size: stat.Size, ContentType: stat.ContentType}, nil
}

func (s *BlobStore) Delete(ctx context.Context, objectID string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectID, minio.RemoveObjectOptions{})
	if err != nil && !object.IsNotFound(err) {
		return fmt.Errorf("remove object %s: %w", objectID, err)
	}
	return nil
}

package filestore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
)

// minioAPI is the subset of the MinIO client used by MinIOStore.
type minioAPI interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

// MinIOClient adapts minio.Client to minioAPI. The returned reader is a
// *minio.Object, which supports seeking.
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient wraps client.
func NewMinIOClient(client *minio.Client) *MinIOClient {
	return &MinIOClient{client: client}
}

func (c *MinIOClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return c.client.StatObject(ctx, bucketName, objectName, opts)
}

func (c *MinIOClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.client.GetObject(ctx, bucketName, objectName, opts)
}

// MinIOStore serves bundles from a MinIO bucket.
type MinIOStore struct {
	client minioAPI
	bucket string
	alg    Algorithm
}

// NewMinIOStore builds a store over bucket.
func NewMinIOStore(client minioAPI, bucket string, alg Algorithm) *MinIOStore {
	return &MinIOStore{client: client, bucket: bucket, alg: alg}
}

// Stat implements Store.
func (s *MinIOStore) Stat(ctx context.Context, p string) (ObjectInfo, error) {
	if err := ValidatePath(p); err != nil {
		return ObjectInfo{}, err
	}
	info, err := s.client.StatObject(ctx, s.bucket, p, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, translateMinIOError(err)
	}
	return minioObjectInfo(p, info), nil
}

// Open implements Store. The object is stat'ed first so a missing key is
// reported before any body is handed out.
func (s *MinIOStore) Open(ctx context.Context, p string) (*Object, error) {
	info, err := s.Stat(ctx, p)
	if err != nil {
		return nil, err
	}

	opts := minio.GetObjectOptions{}
	if info.ETag != "" {
		if err := opts.SetMatchETag(info.ETag); err != nil {
			return nil, fmt.Errorf("prepare get object: %w", err)
		}
	}
	body, err := s.client.GetObject(ctx, s.bucket, p, opts)
	if err != nil {
		return nil, translateMinIOError(err)
	}
	return &Object{ObjectInfo: info, Body: body}, nil
}

// Digest implements Store by streaming the object.
func (s *MinIOStore) Digest(ctx context.Context, p string) (string, error) {
	return digestOf(ctx, s, s.alg, p)
}

func minioObjectInfo(p string, info minio.ObjectInfo) ObjectInfo {
	contentType := info.ContentType
	if contentType == "" {
		contentType = contentTypeFor(p)
	}
	return ObjectInfo{
		Path:        p,
		Size:        info.Size,
		ModTime:     info.LastModified.UTC(),
		ContentType: contentType,
		ETag:        strings.Trim(info.ETag, `"`),
	}
}

func translateMinIOError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return ErrNotFound
	}
	return fmt.Errorf("minio object: %w", err)
}

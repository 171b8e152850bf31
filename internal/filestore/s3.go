package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store serves bundles from an S3-compatible bucket. Bodies are plain
// streams, so range requests are not supported.
type S3Store struct {
	client s3API
	bucket string
	alg    Algorithm
}

// NewS3Store builds a store over bucket.
func NewS3Store(client s3API, bucket string, alg Algorithm) *S3Store {
	return &S3Store{client: client, bucket: bucket, alg: alg}
}

// Stat implements Store.
func (s *S3Store) Stat(ctx context.Context, p string) (ObjectInfo, error) {
	if err := ValidatePath(p); err != nil {
		return ObjectInfo{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(p),
	})
	if err != nil {
		return ObjectInfo{}, translateS3Error(err)
	}
	return s3ObjectInfo(p, aws.ToInt64(out.ContentLength), out.LastModified, out.ContentType, out.ETag), nil
}

// Open implements Store.
func (s *S3Store) Open(ctx context.Context, p string) (*Object, error) {
	if err := ValidatePath(p); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(p),
	})
	if err != nil {
		return nil, translateS3Error(err)
	}
	return &Object{
		ObjectInfo: s3ObjectInfo(p, aws.ToInt64(out.ContentLength), out.LastModified, out.ContentType, out.ETag),
		Body:       out.Body,
	}, nil
}

// Digest implements Store by streaming the object.
func (s *S3Store) Digest(ctx context.Context, p string) (string, error) {
	return digestOf(ctx, s, s.alg, p)
}

func s3ObjectInfo(p string, size int64, modTime *time.Time, contentType, etag *string) ObjectInfo {
	info := ObjectInfo{
		Path:        p,
		Size:        size,
		ModTime:     aws.ToTime(modTime).UTC(),
		ContentType: aws.ToString(contentType),
		ETag:        strings.Trim(aws.ToString(etag), `"`),
	}
	if info.ContentType == "" {
		info.ContentType = contentTypeFor(p)
	}
	return info
}

func translateS3Error(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return ErrNotFound
		}
	}
	return fmt.Errorf("s3 object: %w", err)
}

package filestore

import (
	"context"
	"io"
	"mime"
	"path"
	"time"
)

// ObjectInfo describes a stored bundle.
type ObjectInfo struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentType string
	ETag        string
}

// Object is an open bundle. Body may also implement io.ReadSeeker, in which
// case range requests can be served.
type Object struct {
	ObjectInfo
	Body io.ReadCloser
}

// Store reads bundles by resource path. A digest returned for a path must
// match the bytes subsequently opened at that path.
type Store interface {
	Stat(ctx context.Context, path string) (ObjectInfo, error)
	Open(ctx context.Context, path string) (*Object, error)
	Digest(ctx context.Context, path string) (string, error)
}

const defaultContentType = "application/octet-stream"

func contentTypeFor(p string) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return defaultContentType
}

func digestOf(ctx context.Context, s Store, alg Algorithm, p string) (string, error) {
	obj, err := s.Open(ctx, p)
	if err != nil {
		return "", err
	}
	defer obj.Body.Close()

	sum, _, err := HashReader(alg, obj.Body)
	return sum, err
}

package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// LocalStore serves bundles from a directory tree.
type LocalStore struct {
	root string
	alg  Algorithm
}

// NewLocalStore roots a store at dir, which must exist.
func NewLocalStore(dir string, alg Algorithm) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat bundle root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle root %q is not a directory", dir)
	}
	return &LocalStore{root: resolved, alg: alg}, nil
}

// Stat implements Store.
func (s *LocalStore) Stat(_ context.Context, p string) (ObjectInfo, error) {
	full, err := s.resolve(p)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return ObjectInfo{}, translateFSError(err)
	}
	if !info.Mode().IsRegular() {
		return ObjectInfo{}, ErrNotFound
	}
	return s.objectInfo(p, info), nil
}

// Open implements Store. The returned body is an *os.File and supports seeking.
func (s *LocalStore) Open(_ context.Context, p string) (*Object, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, translateFSError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat object: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return &Object{ObjectInfo: s.objectInfo(p, info), Body: f}, nil
}

// Digest implements Store by hashing the file contents.
func (s *LocalStore) Digest(ctx context.Context, p string) (string, error) {
	return digestOf(ctx, s, s.alg, p)
}

// resolve maps an object key to a file below root, following symlinks and
// refusing anything that lands outside.
func (s *LocalStore) resolve(p string) (string, error) {
	if err := ValidatePath(p); err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(p))
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", translateFSError(err)
	}
	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		return "", ErrNotFound
	}
	return resolved, nil
}

func (s *LocalStore) objectInfo(p string, info fs.FileInfo) ObjectInfo {
	return ObjectInfo{
		Path:        p,
		Size:        info.Size(),
		ModTime:     info.ModTime().UTC(),
		ContentType: contentTypeFor(p),
		ETag:        fmt.Sprintf("%x-%x", info.ModTime().UnixNano(), info.Size()),
	}
}

func translateFSError(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.ENOTDIR) {
		return ErrNotFound
	}
	return fmt.Errorf("read object: %w", err)
}

package filestore

import "errors"

var (
	// ErrNotFound signals that no object exists at the path.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidPath rejects paths that are not clean relative object keys.
	ErrInvalidPath = errors.New("invalid object path")
	// ErrUnsupportedAlgorithm is returned for unknown digest algorithms.
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")
)

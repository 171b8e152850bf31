package metadata

import "errors"

var (
	// ErrNotFound means no update is published for the platform.
	ErrNotFound = errors.New("update metadata not found")
	// ErrInvalidPlatform rejects platform identifiers outside [a-z0-9_-].
	ErrInvalidPlatform = errors.New("invalid platform id")
	// ErrInvalidRecord is returned for stored metadata that fails validation.
	ErrInvalidRecord = errors.New("invalid update metadata")
)

package issuer

import "errors"

var (
	// ErrInvalidPlatform means the request named no usable platform.
	ErrInvalidPlatform = errors.New("invalid platform")
	// ErrIntegrityFault means published metadata and stored bytes disagree.
	ErrIntegrityFault = errors.New("integrity fault")
)

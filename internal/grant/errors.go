package grant

import "errors"

var (
	// ErrInvalidArgument is returned when a grant cannot be minted from the given input.
	ErrInvalidArgument = errors.New("invalid grant argument")
	// ErrMalformed means the token could not be parsed.
	ErrMalformed = errors.New("malformed grant")
	// ErrBadSignature means the MAC did not verify or the key generation is unknown.
	ErrBadSignature = errors.New("bad grant signature")
	// ErrExpired is reported by verifiers once expiresAt has passed.
	ErrExpired = errors.New("grant expired")
	// ErrPathMismatch is reported by verifiers when the grant names another resource.
	ErrPathMismatch = errors.New("grant path mismatch")
	// ErrInvalidKeyring signals an unusable signing key configuration.
	ErrInvalidKeyring = errors.New("invalid signing keyring")
)

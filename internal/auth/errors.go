package auth

import "errors"

var (
	// ErrUnauthorized represents a missing or invalid caller credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrClientNotFound signals that no API client exists for the subject.
	ErrClientNotFound = errors.New("api client not found")
	// ErrClientDisabled is returned for clients an operator switched off.
	ErrClientDisabled = errors.New("api client disabled")
	// ErrInvalidSubject rejects subjects that cannot be embedded in an API key.
	ErrInvalidSubject = errors.New("invalid subject")
	// ErrTokensDisabled means no caller token secret is configured.
	ErrTokensDisabled = errors.New("caller tokens disabled")
)

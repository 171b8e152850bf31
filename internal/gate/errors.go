package gate

import (
	"errors"

	"github.com/abduss/otagate/internal/filestore"
	"github.com/abduss/otagate/internal/grant"
)

var (
	// ErrMissingGrant means the request carried no grant.
	ErrMissingGrant = errors.New("grant missing")
	// ErrRevoked means the grant was put on the deny-list before it expired.
	ErrRevoked = errors.New("grant revoked")
	// ErrRevocationUnavailable means the deny-list could not be consulted.
	ErrRevocationUnavailable = errors.New("revocation list unavailable")
	// ErrIntegrityFault means the stored bytes do not match the granted digest.
	ErrIntegrityFault = errors.New("integrity fault")
)

// Denial reasons recorded in logs and metrics. They are never sent to clients.
const (
	ReasonMissing               = "missing"
	ReasonMalformed             = "malformed"
	ReasonBadSignature          = "bad_signature"
	ReasonExpired               = "expired"
	ReasonPathMismatch          = "path_mismatch"
	ReasonRevoked               = "revoked"
	ReasonRevocationUnavailable = "revocation_unavailable"
	ReasonBadPath               = "bad_path"
	ReasonUnknown               = "unknown"
)

// DenialReason maps an Authorize error to its observability label.
func DenialReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingGrant):
		return ReasonMissing
	case errors.Is(err, grant.ErrMalformed):
		return ReasonMalformed
	case errors.Is(err, grant.ErrBadSignature):
		return ReasonBadSignature
	case errors.Is(err, grant.ErrExpired):
		return ReasonExpired
	case errors.Is(err, grant.ErrPathMismatch):
		return ReasonPathMismatch
	case errors.Is(err, ErrRevoked):
		return ReasonRevoked
	case errors.Is(err, ErrRevocationUnavailable):
		return ReasonRevocationUnavailable
	case errors.Is(err, filestore.ErrInvalidPath):
		return ReasonBadPath
	default:
		return ReasonUnknown
	}
}

package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/otagate/internal/grant"
)

// Verifier decides whether a presented grant authorizes a download.
type Verifier struct {
	codec       *grant.Codec
	revocations RevocationList
	skew        time.Duration
	nowFunc     func() time.Time
}

// NewVerifier creates a Verifier. revocations may be nil; skew extends
// validity past expiresAt to tolerate clock drift between hosts.
func NewVerifier(codec *grant.Codec, revocations RevocationList, skew time.Duration) *Verifier {
	return &Verifier{
		codec:       codec,
		revocations: revocations,
		skew:        skew,
		nowFunc:     time.Now,
	}
}

// Authorize checks, in order: presence, signature, expiry, path binding and
// revocation. The first failing check determines the error.
func (v *Verifier) Authorize(ctx context.Context, requestedPath, token string) (grant.Grant, error) {
	if token == "" {
		return grant.Grant{}, ErrMissingGrant
	}

	g, err := v.codec.Decode(token)
	if err != nil {
		return grant.Grant{}, err
	}

	if g.ExpiredAt(v.nowFunc(), v.skew) {
		return g, grant.ErrExpired
	}
	if g.ResourcePath != requestedPath {
		return g, grant.ErrPathMismatch
	}

	if v.revocations != nil && g.ID != "" {
		revoked, err := v.revocations.IsRevoked(ctx, g.ID)
		if err != nil {
			return g, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
		if revoked {
			return g, ErrRevoked
		}
	}

	return g, nil
}

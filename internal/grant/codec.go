package grant

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const tokenVersion = "v1"

// Grant is a signed, time-bounded authorization to fetch one resource.
type Grant struct {
	ID            string
	ResourcePath  string
	Subject       string
	ContentHash   string
	ExpiresAt     time.Time
	KeyGeneration uint32
}

// ExpiredAt reports whether the grant is no longer valid at now, allowing
// skew of clock tolerance. A grant expiring exactly at now is expired.
func (g Grant) ExpiredAt(now time.Time, skew time.Duration) bool {
	return !g.ExpiresAt.Add(skew).After(now)
}

// payload is the signed wire body. Integer keys keep tokens short.
type payload struct {
	Resource string `cbor:"1,keyasint"`
	Subject  string `cbor:"2,keyasint,omitempty"`
	Expires  int64  `cbor:"3,keyasint"`
	ID       string `cbor:"4,keyasint,omitempty"`
	Hash     string `cbor:"5,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("grant: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("grant: cbor dec mode: %v", err))
	}
}

// Codec mints and parses grant tokens. It holds no mutable state and is
// safe for concurrent use.
//
// Token layout: v1.<gen>.<base64url(cbor payload)>.<base64url(hmac-sha256)>,
// where the MAC covers everything before the last dot.
type Codec struct {
	keys    *Keyring
	nowFunc func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock overrides the time source used to compute expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec creates a Codec signing with the keyring's current generation.
func NewCodec(keys *Keyring, opts ...Option) *Codec {
	c := &Codec{keys: keys, nowFunc: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the codec's clock reading.
func (c *Codec) Now() time.Time {
	return c.nowFunc()
}

// Encode mints a grant for resourcePath expiring ttl from now.
func (c *Codec) Encode(resourcePath, subject string, ttl time.Duration) (string, Grant, error) {
	return c.Mint(Grant{ResourcePath: resourcePath, Subject: subject}, ttl)
}

// Mint signs g with ExpiresAt set ttl from now and a fresh ID when g has
// none. The returned Grant is exactly what Decode will yield.
func (c *Codec) Mint(g Grant, ttl time.Duration) (string, Grant, error) {
	if ttl <= 0 {
		return "", Grant{}, fmt.Errorf("%w: ttl must be positive", ErrInvalidArgument)
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.ExpiresAt = time.Unix(c.nowFunc().Add(ttl).Unix(), 0).UTC()
	g.KeyGeneration = c.keys.Current()

	token, err := c.EncodeGrant(g)
	if err != nil {
		return "", Grant{}, err
	}
	return token, g, nil
}

// EncodeGrant signs g as-is with the current generation. Identical grants
// produce identical tokens. ExpiresAt is carried at second precision.
func (c *Codec) EncodeGrant(g Grant) (string, error) {
	if strings.TrimSpace(g.ResourcePath) == "" {
		return "", fmt.Errorf("%w: resource path is empty", ErrInvalidArgument)
	}
	if g.ExpiresAt.IsZero() {
		return "", fmt.Errorf("%w: expiry is not set", ErrInvalidArgument)
	}

	body, err := encMode.Marshal(payload{
		Resource: g.ResourcePath,
		Subject:  g.Subject,
		Expires:  g.ExpiresAt.Unix(),
		ID:       g.ID,
		Hash:     g.ContentHash,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode payload: %v", ErrInvalidArgument, err)
	}

	gen := c.keys.Current()
	key, _ := c.keys.key(gen)
	signed := signingInput(gen, base64.RawURLEncoding.EncodeToString(body))
	return signed + "." + sign(key, signed), nil
}

// Decode authenticates token and returns its grant. It does not check
// expiry or path; verifiers apply those with their own clock policy.
func (c *Codec) Decode(token string) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 || parts[0] != tokenVersion {
		return Grant{}, ErrMalformed
	}

	gen64, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || strconv.FormatUint(gen64, 10) != parts[1] {
		return Grant{}, ErrMalformed
	}
	gen := uint32(gen64)

	key, ok := c.keys.key(gen)
	if !ok {
		return Grant{}, ErrBadSignature
	}

	signed := signingInput(gen, parts[2])
	if !hmac.Equal([]byte(sign(key, signed)), []byte(parts[3])) {
		return Grant{}, ErrBadSignature
	}

	body, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return Grant{}, ErrMalformed
	}

	var p payload
	if err := decMode.Unmarshal(body, &p); err != nil {
		return Grant{}, ErrMalformed
	}
	if p.Resource == "" {
		return Grant{}, ErrMalformed
	}

	return Grant{
		ID:            p.ID,
		ResourcePath:  p.Resource,
		Subject:       p.Subject,
		ContentHash:   p.Hash,
		ExpiresAt:     time.Unix(p.Expires, 0).UTC(),
		KeyGeneration: gen,
	}, nil
}

func signingInput(gen uint32, encodedPayload string) string {
	return tokenVersion + "." + strconv.FormatUint(uint64(gen), 10) + "." + encodedPayload
}

func sign(key []byte, signed string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(signed))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

package grant

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testKeyring(t *testing.T, current uint32, gens ...uint32) *Keyring {
	t.Helper()
	keys := make(map[uint32][]byte, len(gens))
	for _, gen := range gens {
		keys[gen] = bytes.Repeat([]byte{byte('a' + gen)}, MinKeyLength)
	}
	ring, err := NewKeyring(current, keys)
	require.NoError(t, err)
	return ring
}

func testCodec(t *testing.T) *Codec {
	t.Helper()
	return NewCodec(testKeyring(t, 1, 1), WithClock(func() time.Time { return fixedNow }))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := testCodec(t)

	cases := []struct {
		path    string
		subject string
		ttl     time.Duration
	}{
		{"android/bundle.js", "device-1", 5 * time.Minute},
		{"ios/v2/main.jsbundle", "", time.Second},
		{"a", "subject with spaces and ünicode", 24 * time.Hour},
	}

	for _, tc := range cases {
		token, issued, err := codec.Encode(tc.path, tc.subject, tc.ttl)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		decoded, err := codec.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, issued, decoded)
		assert.Equal(t, tc.path, decoded.ResourcePath)
		assert.Equal(t, tc.subject, decoded.Subject)
		assert.Equal(t, fixedNow.Add(tc.ttl), decoded.ExpiresAt)
		assert.NotEmpty(t, decoded.ID)
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	codec := testCodec(t)

	_, _, err := codec.Encode("", "s", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = codec.Encode("   ", "s", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = codec.Encode("a/b", "s", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = codec.Encode("a/b", "s", -time.Second)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEncodeGrantIsDeterministic(t *testing.T) {
	codec := testCodec(t)
	g := Grant{
		ID:           "fixed-id",
		ResourcePath: "android/bundle.js",
		Subject:      "device-1",
		ContentHash:  "abc123",
		ExpiresAt:    fixedNow.Add(time.Minute),
	}

	first, err := codec.EncodeGrant(g)
	require.NoError(t, err)
	second, err := codec.EncodeGrant(g)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecodeDetectsTampering(t *testing.T) {
	codec := testCodec(t)
	token, _, err := codec.Encode("android/bundle.js", "device-1", time.Minute)
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		mutated := []byte(token)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}

		_, err := codec.Decode(string(mutated))
		if !errors.Is(err, ErrBadSignature) && !errors.Is(err, ErrMalformed) {
			t.Fatalf("mutating byte %d: expected ErrBadSignature or ErrMalformed, got %v", i, err)
		}
	}
}

func TestDecodeMalformedInputs(t *testing.T) {
	codec := testCodec(t)

	for _, token := range []string{
		"",
		"garbage",
		"v1.1.payload",
		"v2.1.payload.mac",
		"v1.x.payload.mac",
		"v1.01.payload.mac",
		"v1.1.a.b.c",
	} {
		_, err := codec.Decode(token)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", token)
	}
}

func TestDecodeRejectsForeignKey(t *testing.T) {
	issuer := NewCodec(testKeyring(t, 1, 1))
	verifier := NewCodec(func() *Keyring {
		ring, err := NewKeyring(1, map[uint32][]byte{1: bytes.Repeat([]byte{'z'}, MinKeyLength)})
		require.NoError(t, err)
		return ring
	}())

	token, _, err := issuer.Encode("android/bundle.js", "device-1", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Decode(token)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestKeyRotation(t *testing.T) {
	oldCodec := NewCodec(testKeyring(t, 1, 1))
	rotated := NewCodec(testKeyring(t, 2, 2, 1))
	retired := NewCodec(testKeyring(t, 2, 2))

	oldToken, _, err := oldCodec.Encode("android/bundle.js", "device-1", time.Minute)
	require.NoError(t, err)

	g, err := rotated.Decode(oldToken)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), g.KeyGeneration)

	newToken, issued, err := rotated.Encode("android/bundle.js", "device-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), issued.KeyGeneration)

	_, err = oldCodec.Decode(newToken)
	assert.ErrorIs(t, err, ErrBadSignature, "unknown generation must be rejected")

	_, err = retired.Decode(oldToken)
	assert.ErrorIs(t, err, ErrBadSignature, "dropped generation must be rejected")
}

func TestDecodeDoesNotCheckExpiry(t *testing.T) {
	codec := testCodec(t)
	token, err := codec.EncodeGrant(Grant{ResourcePath: "a/b", ExpiresAt: fixedNow.Add(-time.Hour)})
	require.NoError(t, err)

	g, err := codec.Decode(token)
	require.NoError(t, err)
	assert.True(t, g.ExpiredAt(fixedNow, 0))
}

func TestExpiredAt(t *testing.T) {
	g := Grant{ExpiresAt: fixedNow}

	assert.True(t, g.ExpiredAt(fixedNow, 0), "expiresAt == now is expired")
	assert.True(t, g.ExpiredAt(fixedNow.Add(time.Second), 0))
	assert.False(t, g.ExpiredAt(fixedNow.Add(-time.Second), 0))
	assert.False(t, g.ExpiredAt(fixedNow.Add(time.Second), 2*time.Second), "skew extends validity")
}

func TestConcurrentEncodeIsIndependent(t *testing.T) {
	codec := testCodec(t)

	var wg sync.WaitGroup
	tokens := make([]string, 32)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, _, err := codec.Encode("android/bundle.js", string(rune('a'+i)), time.Minute)
			if err == nil {
				tokens[i] = token
			}
		}(i)
	}
	wg.Wait()

	for i, token := range tokens {
		g, err := codec.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, string(rune('a'+i)), g.Subject)
	}
}

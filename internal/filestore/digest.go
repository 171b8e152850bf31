package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a content digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm maps a configuration value to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case SHA256, BLAKE3:
		return alg, nil
	case "":
		return SHA256, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// HashReader streams r through the algorithm and returns the lowercase hex
// digest and the number of bytes read.
func HashReader(alg Algorithm, r io.Reader) (string, int64, error) {
	h := alg.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hash object: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// EqualDigest compares two hex digests ignoring case.
func EqualDigest(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

package grant

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MinKeyLength is the shortest signing key accepted, in bytes.
const MinKeyLength = 32

// Keyring holds the signing keys by generation. The current generation signs
// new grants; every generation present verifies. A Keyring is immutable once built.
type Keyring struct {
	current uint32
	keys    map[uint32][]byte
}

// NewKeyring builds a keyring from explicit keys. current must be present in keys.
func NewKeyring(current uint32, keys map[uint32][]byte) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrInvalidKeyring)
	}

	copied := make(map[uint32][]byte, len(keys))
	for gen, key := range keys {
		if len(key) < MinKeyLength {
			return nil, fmt.Errorf("%w: generation %d key shorter than %d bytes", ErrInvalidKeyring, gen, MinKeyLength)
		}
		copied[gen] = append([]byte(nil), key...)
	}
	if _, ok := copied[current]; !ok {
		return nil, fmt.Errorf("%w: current generation %d has no key", ErrInvalidKeyring, current)
	}

	return &Keyring{current: current, keys: copied}, nil
}

// ParseKeyring reads "gen:base64key[,gen:base64key...]". The first entry is
// the current signing generation.
func ParseKeyring(raw string) (*Keyring, error) {
	entries := strings.Split(raw, ",")
	keys := make(map[uint32][]byte, len(entries))
	var current uint32
	first := true

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		rawGen, rawKey, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("%w: entry %q is not gen:key", ErrInvalidKeyring, entry)
		}
		gen, err := strconv.ParseUint(strings.TrimSpace(rawGen), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: generation %q: %v", ErrInvalidKeyring, rawGen, err)
		}
		if _, dup := keys[uint32(gen)]; dup {
			return nil, fmt.Errorf("%w: generation %d listed twice", ErrInvalidKeyring, gen)
		}
		key, err := decodeKey(strings.TrimSpace(rawKey))
		if err != nil {
			return nil, fmt.Errorf("%w: generation %d: %v", ErrInvalidKeyring, gen, err)
		}
		keys[uint32(gen)] = key
		if first {
			current = uint32(gen)
			first = false
		}
	}

	return NewKeyring(current, keys)
}

// Current returns the generation used for signing.
func (k *Keyring) Current() uint32 {
	return k.current
}

// Generations lists the accepted generations in descending order.
func (k *Keyring) Generations() []uint32 {
	out := make([]uint32, 0, len(k.keys))
	for gen := range k.keys {
		out = append(out, gen)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

func (k *Keyring) key(gen uint32) ([]byte, bool) {
	key, ok := k.keys[gen]
	return key, ok
}

func decodeKey(raw string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return key, nil
	}
	return base64.RawURLEncoding.DecodeString(raw)
}

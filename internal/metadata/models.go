package metadata

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/abduss/otagate/internal/filestore"
)

// DefaultRolloutPercent applies when a record does not set rolloutPercent.
const DefaultRolloutPercent = 100

var platformPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// UpdateMetadata describes the bundle currently published for one platform.
type UpdateMetadata struct {
	PlatformID     string    `json:"platformId" yaml:"platformId"`
	Version        string    `json:"version" yaml:"version"`
	ResourcePath   string    `json:"resourcePath" yaml:"resourcePath"`
	ContentHash    string    `json:"contentHash" yaml:"contentHash"`
	Mandatory      bool      `json:"mandatory" yaml:"mandatory"`
	RolloutPercent *int      `json:"rolloutPercent,omitempty" yaml:"rolloutPercent,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// Store reads update metadata by platform.
type Store interface {
	Get(ctx context.Context, platformID string) (UpdateMetadata, error)
}

// Lister is implemented by stores that can enumerate every platform.
type Lister interface {
	List(ctx context.Context) ([]UpdateMetadata, error)
}

// ValidatePlatformID reports ErrInvalidPlatform for ids outside [a-z0-9_-]{1,64}.
func ValidatePlatformID(id string) error {
	if !platformPattern.MatchString(id) {
		return ErrInvalidPlatform
	}
	return nil
}

// Rollout returns the effective rollout percentage.
func (m UpdateMetadata) Rollout() int {
	if m.RolloutPercent == nil {
		return DefaultRolloutPercent
	}
	return *m.RolloutPercent
}

// SemVer parses Version.
func (m UpdateMetadata) SemVer() (*semver.Version, error) {
	return semver.NewVersion(m.Version)
}

// Validate checks a record read from storage and normalises ContentHash to
// lowercase.
func (m *UpdateMetadata) Validate() error {
	if err := ValidatePlatformID(m.PlatformID); err != nil {
		return fmt.Errorf("%w: platform %q", ErrInvalidRecord, m.PlatformID)
	}
	if _, err := m.SemVer(); err != nil {
		return fmt.Errorf("%w: %s version %q: %v", ErrInvalidRecord, m.PlatformID, m.Version, err)
	}
	if err := filestore.ValidatePath(m.ResourcePath); err != nil {
		return fmt.Errorf("%w: %s resource path %q: %v", ErrInvalidRecord, m.PlatformID, m.ResourcePath, err)
	}
	m.ContentHash = strings.ToLower(strings.TrimSpace(m.ContentHash))
	if decoded, err := hex.DecodeString(m.ContentHash); err != nil || len(decoded) == 0 {
		return fmt.Errorf("%w: %s content hash is not hex", ErrInvalidRecord, m.PlatformID)
	}
	if r := m.Rollout(); r < 0 || r > 100 {
		return fmt.Errorf("%w: %s rollout percent %d out of range", ErrInvalidRecord, m.PlatformID, r)
	}
	return nil
}

package issuer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/abduss/otagate/internal/auth"
	"github.com/abduss/otagate/internal/filestore"
	"github.com/abduss/otagate/internal/grant"
	"github.com/abduss/otagate/internal/metadata"
	"github.com/abduss/otagate/internal/metrics"
	"go.uber.org/zap"
)

// digester is the part of the file store the issuer needs.
type digester interface {
	Digest(ctx context.Context, path string) (string, error)
}

// CheckRequest is one client's update check.
type CheckRequest struct {
	Platform         string
	InstalledVersion string
}

// UpdateResponse answers an update check. When Update is false every other
// field is empty.
type UpdateResponse struct {
	Update        bool      `json:"update"`
	Version       string    `json:"version,omitempty"`
	ResourcePath  string    `json:"resourcePath,omitempty"`
	ContentHash   string    `json:"contentHash,omitempty"`
	Mandatory     bool      `json:"mandatory"`
	DownloadToken string    `json:"downloadToken,omitempty"`
	DownloadURL   string    `json:"downloadUrl,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}

// Service mints download grants for published updates. It keeps no
// per-request state and is safe for concurrent use.
type Service struct {
	metadata  metadata.Store
	files     digester
	codec     *grant.Codec
	ttl       time.Duration
	publicURL string
}

// NewService creates a Service. publicURL is the storage server's base URL
// used to build download links.
func NewService(store metadata.Store, files digester, codec *grant.Codec, ttl time.Duration, publicURL string) *Service {
	return &Service{
		metadata:  store,
		files:     files,
		codec:     codec,
		ttl:       ttl,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// CheckUpdate authenticates the caller, looks up the platform's published
// update and, when the caller should install it, returns a grant for it.
func (s *Service) CheckUpdate(ctx context.Context, caller auth.Caller, req CheckRequest) (UpdateResponse, error) {
	resp, err := s.checkUpdate(ctx, caller, req)
	if err != nil {
		metrics.UpdateCheck("error")
	}
	return resp, err
}

func (s *Service) checkUpdate(ctx context.Context, caller auth.Caller, req CheckRequest) (UpdateResponse, error) {
	if !caller.Authenticated {
		return UpdateResponse{}, auth.ErrUnauthorized
	}

	platform := strings.TrimSpace(req.Platform)
	if platform == "" {
		return UpdateResponse{}, ErrInvalidPlatform
	}

	meta, err := s.metadata.Get(ctx, platform)
	if err != nil {
		switch {
		case errors.Is(err, metadata.ErrNotFound):
			metrics.UpdateCheck("none")
			return UpdateResponse{Update: false}, nil
		case errors.Is(err, metadata.ErrInvalidPlatform):
			return UpdateResponse{}, ErrInvalidPlatform
		default:
			return UpdateResponse{}, fmt.Errorf("load metadata: %w", err)
		}
	}

	target, err := meta.SemVer()
	if err != nil {
		return UpdateResponse{}, fmt.Errorf("metadata version: %w", err)
	}
	if upToDate(req.InstalledVersion, target, platform) {
		metrics.UpdateCheck("none")
		return UpdateResponse{Update: false}, nil
	}

	if !meta.Mandatory && !inRollout(caller.Subject, meta.Version, meta.Rollout()) {
		metrics.UpdateCheck("held_back")
		return UpdateResponse{Update: false}, nil
	}

	if err := s.verifyIntegrity(ctx, meta); err != nil {
		return UpdateResponse{}, err
	}

	token, g, err := s.mint(meta, caller.Subject)
	if err != nil {
		return UpdateResponse{}, err
	}

	metrics.GrantIssued(platform)
	metrics.UpdateCheck("update")
	return UpdateResponse{
		Update:        true,
		Version:       meta.Version,
		ResourcePath:  meta.ResourcePath,
		ContentHash:   meta.ContentHash,
		Mandatory:     meta.Mandatory,
		DownloadToken: token,
		DownloadURL:   s.downloadURL(meta.ResourcePath, token),
		ExpiresAt:     g.ExpiresAt,
	}, nil
}

func (s *Service) verifyIntegrity(ctx context.Context, meta metadata.UpdateMetadata) error {
	digest, err := s.files.Digest(ctx, meta.ResourcePath)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			metrics.IntegrityFault("issuer")
			return fmt.Errorf("%w: %s has no stored object at %s", ErrIntegrityFault, meta.PlatformID, meta.ResourcePath)
		}
		return fmt.Errorf("digest bundle: %w", err)
	}
	if !filestore.EqualDigest(digest, meta.ContentHash) {
		metrics.IntegrityFault("issuer")
		return fmt.Errorf("%w: %s declares %s but %s hashes to %s",
			ErrIntegrityFault, meta.PlatformID, meta.ContentHash, meta.ResourcePath, digest)
	}
	return nil
}

func (s *Service) mint(meta metadata.UpdateMetadata, subject string) (string, grant.Grant, error) {
	token, g, err := s.codec.Mint(grant.Grant{
		ResourcePath: meta.ResourcePath,
		Subject:      subject,
		ContentHash:  meta.ContentHash,
	}, s.ttl)
	if err != nil {
		return "", grant.Grant{}, fmt.Errorf("mint grant: %w", err)
	}
	return token, g, nil
}

func (s *Service) downloadURL(resourcePath, token string) string {
	segments := strings.Split(resourcePath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicURL + "/files/" + strings.Join(segments, "/") + "?grant=" + url.QueryEscape(token)
}

// upToDate reports whether installed is at least target. Versions that do
// not parse are treated as unknown, so the update is offered.
func upToDate(installed string, target *semver.Version, platform string) bool {
	installed = strings.TrimSpace(installed)
	if installed == "" {
		return false
	}
	current, err := semver.NewVersion(installed)
	if err != nil {
		zap.L().Warn("unparsable installed version, offering update",
			zap.String("platform", platform), zap.String("installed_version", installed))
		return false
	}
	return current.Compare(target) >= 0
}

// inRollout places subject in a stable bucket 0-99 per version.
func inRollout(subject, version string, percent int) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}
	h := fnv.New32a()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(version))
	return int(h.Sum32()%100) < percent
}

package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// FileStore reads one record per platform from a directory:
// <dir>/<platform>.json (comments and trailing commas allowed) or
// <dir>/<platform>.yaml. Files are re-read on every call so a deployment
// can swap them in place.
type FileStore struct {
	dir string
}

var metadataExtensions = []string{".json", ".yaml", ".yml"}

// NewFileStore reads metadata from dir, which must exist.
func NewFileStore(dir string) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat metadata dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("metadata dir %q is not a directory", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, platformID string) (UpdateMetadata, error) {
	if err := ValidatePlatformID(platformID); err != nil {
		return UpdateMetadata{}, err
	}

	for _, ext := range metadataExtensions {
		path := filepath.Join(s.dir, platformID+ext)
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return UpdateMetadata{}, fmt.Errorf("read metadata %s: %w", path, err)
		}

		m, err := parseRecord(raw, ext)
		if err != nil {
			return UpdateMetadata{}, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, path, err)
		}
		if m.PlatformID == "" {
			m.PlatformID = platformID
		}
		if m.PlatformID != platformID {
			return UpdateMetadata{}, fmt.Errorf("%w: %s declares platform %q", ErrInvalidRecord, path, m.PlatformID)
		}
		if m.UpdatedAt.IsZero() {
			if info, err := os.Stat(path); err == nil {
				m.UpdatedAt = info.ModTime().UTC()
			}
		}
		if err := m.Validate(); err != nil {
			return UpdateMetadata{}, err
		}
		return m, nil
	}

	return UpdateMetadata{}, ErrNotFound
}

// List implements Lister. Files that fail to parse are reported as errors.
func (s *FileStore) List(ctx context.Context) ([]UpdateMetadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read metadata dir: %w", err)
	}

	seen := make(map[string]bool)
	var out []UpdateMetadata
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		id := strings.TrimSuffix(entry.Name(), ext)
		if !isMetadataExt(ext) || seen[id] || ValidatePlatformID(id) != nil {
			continue
		}
		seen[id] = true

		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformID < out[j].PlatformID })
	return out, nil
}

func parseRecord(raw []byte, ext string) (UpdateMetadata, error) {
	var m UpdateMetadata
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return UpdateMetadata{}, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return UpdateMetadata{}, err
		}
	}
	return m, nil
}

func isMetadataExt(ext string) bool {
	for _, e := range metadataExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const androidHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFileStoreReadsJSONWithComments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "android.json", `{
  // published by the release pipeline
  "version": "2.0.0",
  "resourcePath": "android/bundle.js",
  "contentHash": "`+"9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08"+`",
  "mandatory": false,
}`)

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	m, err := store.Get(context.Background(), "android")
	require.NoError(t, err)
	assert.Equal(t, "android", m.PlatformID)
	assert.Equal(t, "2.0.0", m.Version)
	assert.Equal(t, "android/bundle.js", m.ResourcePath)
	assert.Equal(t, androidHash, m.ContentHash, "hash normalised to lowercase")
	assert.False(t, m.Mandatory)
	assert.Equal(t, DefaultRolloutPercent, m.Rollout())
	assert.False(t, m.UpdatedAt.IsZero())
}

func TestFileStoreReadsYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ios.yaml", `
platformId: ios
version: 3.1.0
resourcePath: ios/main.jsbundle
contentHash: `+androidHash+`
mandatory: true
rolloutPercent: 25
`)

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	m, err := store.Get(context.Background(), "ios")
	require.NoError(t, err)
	assert.True(t, m.Mandatory)
	assert.Equal(t, 25, m.Rollout())
}

func TestFileStoreErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.json", `{"version": `)
	writeFile(t, dir, "badver.json", `{"version": "latest", "resourcePath": "a/b", "contentHash": "ab"}`)
	writeFile(t, dir, "badpath.json", `{"version": "1.0.0", "resourcePath": "../etc/passwd", "contentHash": "ab"}`)
	writeFile(t, dir, "badhash.json", `{"version": "1.0.0", "resourcePath": "a/b", "contentHash": "xyz"}`)
	writeFile(t, dir, "other.json", `{"platformId": "android", "version": "1.0.0", "resourcePath": "a/b", "contentHash": "ab"}`)
	writeFile(t, dir, "legacy.json", `{"version": "1.0.0", "fileUrl": "a/b", "contentHash": "ab"}`)
	writeFile(t, dir, "rollout.json", `{"version": "1.0.0", "resourcePath": "a/b", "contentHash": "ab", "rolloutPercent": 150}`)

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"broken", "badver", "badpath", "badhash", "other", "legacy", "rollout"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidRecord, id)
	}

	_, err = store.Get(ctx, "windows")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []string{"", "../android", "Android", "a/b", "a.b"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidPlatform, "%q", id)
	}
}

func TestFileStoreList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ios.yml", "version: 1.0.0\nresourcePath: ios/b\ncontentHash: ab\n")
	writeFile(t, dir, "android.json", `{"version": "2.0.0", "resourcePath": "android/b", "contentHash": "cd"}`)
	writeFile(t, dir, "README.md", "not metadata")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "android", list[0].PlatformID)
	assert.Equal(t, "ios", list[1].PlatformID)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(UpdateMetadata{
		PlatformID:   "android",
		Version:      "2.0.0",
		ResourcePath: "android/bundle.js",
		ContentHash:  androidHash,
	}))
	assert.ErrorIs(t, store.Put(UpdateMetadata{PlatformID: "ios", Version: "x"}), ErrInvalidRecord)

	m, err := store.Get(ctx, "android")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", m.Version)

	_, err = store.Get(ctx, "ios")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNewFileStoreRequiresDirectory(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

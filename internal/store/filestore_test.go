package store_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/internal/models"
	"github.com/fieldtrack/agent/internal/store"
	"github.com/fieldtrack/agent/pkg/encryption"
	"github.com/fieldtrack/agent/pkg/file"
	"github.com/fieldtrack/agent/pkg/trace"
)

func i64(v int64) *int64 { return &v }

func testPoints() []trace.Point {
	return []trace.Point{
		{Lat: 10.0, Lon: 20.0, TS: i64(1700000000)},
		{Lat: 10.001, Lon: 20.001, TS: i64(1700000060)},
	}
}

func newFileStore(t *testing.T, enc encryption.EncryptionManagerInterface) (*store.FileStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cache")
	logger := zerolog.Nop()
	s, err := store.NewFileStore(dir, file.NewFileService(), enc, "agent-1", logger)
	require.NoError(t, err)
	return s, dir
}

func entryPath(dir, deviceID string) string {
	return filepath.Join(dir, constants.CacheKeyPrefix+deviceID+".json")
}

// TestFileStore_SaveLoadRoundTrip verifies that a saved trace loads back unchanged.
func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	// Setup
	s, _ := newFileStore(t, nil)
	points := testPoints()

	// Execute
	require.NoError(t, s.Save("esp32-01", points))
	loaded, err := s.Load("esp32-01")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, points, loaded)
}

// TestFileStore_LoadMissingEntry verifies that an unknown device is a miss, not an error.
func TestFileStore_LoadMissingEntry(t *testing.T) {
	// Setup
	s, _ := newFileStore(t, nil)

	// Execute
	loaded, err := s.Load("never-seen")

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}

// TestFileStore_LoadCorruptEntry verifies that unparseable entries come back empty
// with a PersistenceError, so callers can keep going.
func TestFileStore_LoadCorruptEntry(t *testing.T) {
	// Setup
	s, dir := newFileStore(t, nil)
	require.NoError(t, s.Save("esp32-01", testPoints()))
	require.NoError(t, os.WriteFile(entryPath(dir, "esp32-01"), []byte("{not json"), 0600))

	// Execute
	loaded, err := s.Load("esp32-01")

	// Assert
	require.Error(t, err)
	var perr *store.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "load", perr.Op)
	assert.Equal(t, "esp32-01", perr.DeviceID)
	assert.Empty(t, loaded)
}

// TestFileStore_IncompatibleSchemaIsMiss verifies that entries written by a
// different major schema version are silently discarded.
func TestFileStore_IncompatibleSchemaIsMiss(t *testing.T) {
	// Setup
	s, dir := newFileStore(t, nil)
	entry := models.CacheEntry{
		Version:  "2.0.0",
		DeviceID: "esp32-01",
		Points:   testPoints(),
		SavedAt:  1700000000,
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(entryPath(dir, "esp32-01"), raw, 0600))

	// Execute
	loaded, err := s.Load("esp32-01")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

// TestFileStore_ClearRemovesEntry verifies that Clear drops the entry and that
// clearing an absent entry is not an error.
func TestFileStore_ClearRemovesEntry(t *testing.T) {
	// Setup
	s, _ := newFileStore(t, nil)
	require.NoError(t, s.Save("esp32-01", testPoints()))

	// Execute
	require.NoError(t, s.Clear("esp32-01"))
	loaded, err := s.Load("esp32-01")

	// Assert
	require.NoError(t, err)
	assert.Empty(t, loaded)
	assert.NoError(t, s.Clear("esp32-01"))
}

// TestFileStore_EncryptedRoundTrip verifies that entries encrypted at rest load
// back unchanged and are not readable as plain JSON on disk.
func TestFileStore_EncryptedRoundTrip(t *testing.T) {
	// Setup
	fileOps := file.NewFileService()
	enc := encryption.NewEncryptionManager(fileOps)
	saltPath := filepath.Join(t.TempDir(), "cache.salt")
	require.NoError(t, enc.InitializeFromPassphrase("correct horse battery staple", saltPath))
	s, dir := newFileStore(t, enc)
	points := testPoints()

	// Execute
	require.NoError(t, s.Save("esp32-01", points))
	loaded, err := s.Load("esp32-01")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, points, loaded)
	raw, err := os.ReadFile(entryPath(dir, "esp32-01"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "esp32-01")
}

// TestFileStore_SaveOverwrites verifies that a later save replaces the earlier entry.
func TestFileStore_SaveOverwrites(t *testing.T) {
	// Setup
	s, _ := newFileStore(t, nil)
	require.NoError(t, s.Save("esp32-01", testPoints()))
	replacement := []trace.Point{{Lat: 48.8566, Lon: 2.3522, TS: i64(1700009000)}}

	// Execute
	require.NoError(t, s.Save("esp32-01", replacement))
	loaded, err := s.Load("esp32-01")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, replacement, loaded)
}

// TestFileStore_DeviceIDWithSlashes verifies that path-hostile device IDs do not
// escape the cache directory.
func TestFileStore_DeviceIDWithSlashes(t *testing.T) {
	// Setup
	s, dir := newFileStore(t, nil)
	points := testPoints()

	// Execute
	require.NoError(t, s.Save("../escape/../../etc", points))
	loaded, err := s.Load("../escape/../../etc")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, points, loaded)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir())
}

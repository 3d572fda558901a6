package store

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/internal/models"
	"github.com/fieldtrack/agent/pkg/encryption"
	"github.com/fieldtrack/agent/pkg/file"
	"github.com/fieldtrack/agent/pkg/trace"
)

// FileStore keeps one JSON file per device under a cache directory.
// Entries are written atomically and optionally encrypted with the
// agent's AES-GCM manager.
type FileStore struct {
	dir        string
	fileOps    file.FileOperations
	encryption encryption.EncryptionManagerInterface // nil means plaintext
	agentID    string
	locks      cmap.ConcurrentMap[string, *sync.Mutex]
	logger     zerolog.Logger
}

// NewFileStore creates the cache directory if needed and returns a
// store rooted there. Pass a nil encryption manager to store entries
// as plaintext JSON.
func NewFileStore(dir string, fileOps file.FileOperations, enc encryption.EncryptionManagerInterface, agentID string, logger zerolog.Logger) (*FileStore, error) {
	if err := fileOps.MkdirAll(dir); err != nil {
		return nil, &PersistenceError{Op: "init", DeviceID: "", Err: err}
	}
	return &FileStore{
		dir:        dir,
		fileOps:    fileOps,
		encryption: enc,
		agentID:    agentID,
		locks:      cmap.New[*sync.Mutex](),
		logger:     logger,
	}, nil
}

func (s *FileStore) lockFor(deviceID string) *sync.Mutex {
	s.locks.SetIfAbsent(deviceID, &sync.Mutex{})
	mu, _ := s.locks.Get(deviceID)
	return mu
}

func (s *FileStore) pathFor(deviceID string) string {
	return filepath.Join(s.dir, constants.CacheKeyPrefix+url.PathEscape(deviceID)+".json")
}

// Load reads the device's entry. A missing file is a miss, not an
// error. Corrupt or stale entries come back empty with a
// PersistenceError describing what went wrong.
func (s *FileStore) Load(deviceID string) ([]trace.Point, error) {
	mu := s.lockFor(deviceID)
	mu.Lock()
	defer mu.Unlock()

	path := s.pathFor(deviceID)
	exists, err := s.fileOps.IsFileExists(path)
	if err != nil {
		return []trace.Point{}, &PersistenceError{Op: "load", DeviceID: deviceID, Err: err}
	}
	if !exists {
		return []trace.Point{}, nil
	}

	raw, err := s.fileOps.ReadFileRaw(path)
	if err != nil {
		return []trace.Point{}, &PersistenceError{Op: "load", DeviceID: deviceID, Err: err}
	}
	if s.encryption != nil {
		raw, err = s.encryption.Decrypt(raw)
		if err != nil {
			return []trace.Point{}, &PersistenceError{Op: "load", DeviceID: deviceID, Err: err}
		}
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return []trace.Point{}, &PersistenceError{Op: "load", DeviceID: deviceID, Err: err}
	}

	if !schemaCompatible(entry.Version) {
		s.logger.Warn().
			Str("device_id", deviceID).
			Str("entry_version", entry.Version).
			Str("supported_version", constants.CacheSchemaVersion).
			Msg("Discarding cache entry written by an incompatible schema")
		return []trace.Point{}, nil
	}

	if entry.Points == nil {
		return []trace.Point{}, nil
	}
	return entry.Points, nil
}

// Save atomically replaces the device's entry.
func (s *FileStore) Save(deviceID string, points []trace.Point) error {
	mu := s.lockFor(deviceID)
	mu.Lock()
	defer mu.Unlock()

	entry := models.CacheEntry{
		Version:  constants.CacheSchemaVersion,
		DeviceID: deviceID,
		Points:   points,
		SavedAt:  time.Now().Unix(),
		AgentID:  s.agentID,
	}

	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", DeviceID: deviceID, Err: err}
	}
	if s.encryption != nil {
		raw, err = s.encryption.Encrypt(raw)
		if err != nil {
			return &PersistenceError{Op: "save", DeviceID: deviceID, Err: err}
		}
	}

	if err := s.fileOps.WriteFileRaw(s.pathFor(deviceID), raw); err != nil {
		return &PersistenceError{Op: "save", DeviceID: deviceID, Err: err}
	}
	return nil
}

// Clear removes the device's entry. Clearing an absent entry is a no-op.
func (s *FileStore) Clear(deviceID string) error {
	mu := s.lockFor(deviceID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.fileOps.Remove(s.pathFor(deviceID)); err != nil {
		return &PersistenceError{Op: "clear", DeviceID: deviceID, Err: err}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

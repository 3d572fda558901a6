package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/pkg/encryption"
	"github.com/fieldtrack/agent/pkg/trace"
)

const traceCacheSchema = `
CREATE TABLE IF NOT EXISTS trace_cache (
	device_id TEXT PRIMARY KEY,
	version   TEXT NOT NULL,
	agent_id  TEXT NOT NULL DEFAULT '',
	saved_at  INTEGER NOT NULL,
	payload   BLOB NOT NULL
)`

// SQLiteStore keeps one row per device in a local SQLite database.
// The point list is stored as a JSON blob, optionally encrypted, with
// the schema version in its own column so stale rows can be rejected
// without decrypting them. Row-level upserts are atomic, so readers
// never observe a half-written entry.
type SQLiteStore struct {
	db         *sql.DB
	encryption encryption.EncryptionManagerInterface // nil means plaintext
	agentID    string
	logger     zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and prepares
// the cache table.
func NewSQLiteStore(path string, enc encryption.EncryptionManagerInterface, agentID string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Op: "init", DeviceID: "", Err: err}
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	// WAL lets readers proceed while a cycle is writing.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &PersistenceError{Op: "init", DeviceID: "", Err: err}
		}
	}

	if _, err := db.Exec(traceCacheSchema); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "init", DeviceID: "", Err: err}
	}

	return &SQLiteStore{
		db:         db,
		encryption: enc,
		agentID:    agentID,
		logger:     logger,
	}, nil
}

// Load reads the device's row. A missing row is a miss, not an error.
func (s *SQLiteStore) Load(deviceID string) ([]trace.Point, error) {
	var version string
	var payload []byte
	err := s.db.QueryRow(
		"SELECT version, payload FROM trace_cache WHERE device_id = ?", deviceID,
	).Scan(&version, &payload)
	if err == sql.ErrNoRows {
		return []trace.Point{}, nil
	}
	if err != nil {
		return []trace.Point{}, &PersistenceError{Op: "load", DeviceID: deviceID, Err: err}
	}

	if !schemaCompatible(version) {
		s.logger.Warn().
			Str("device_id", deviceID).
			Str("entry_version", version).
			Str("supported_version", constants.CacheSchemaVersion).
			Msg("Discarding cache row written by an incompatible schema")
		return []trace.Point{}, nil
	}

	if s.encryption != nil {
		payload, err = s.encryption.Decrypt(payload)
		if err != nil {
			return []trace.Point{}, &PersistenceError{Op: "load", DeviceID: deviceID, Err: err}
		}
	}

	var points []trace.Point
	if err := json.Unmarshal(payload, &points); err != nil {
		return []trace.Point{}, &PersistenceError{Op: "load", DeviceID: deviceID, Err: err}
	}
	if points == nil {
		return []trace.Point{}, nil
	}
	return points, nil
}

// Save upserts the device's row.
func (s *SQLiteStore) Save(deviceID string, points []trace.Point) error {
	payload, err := json.Marshal(points)
	if err != nil {
		return &PersistenceError{Op: "save", DeviceID: deviceID, Err: err}
	}
	if s.encryption != nil {
		payload, err = s.encryption.Encrypt(payload)
		if err != nil {
			return &PersistenceError{Op: "save", DeviceID: deviceID, Err: err}
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO trace_cache (device_id, version, agent_id, saved_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			version  = excluded.version,
			agent_id = excluded.agent_id,
			saved_at = excluded.saved_at,
			payload  = excluded.payload`,
		deviceID, constants.CacheSchemaVersion, s.agentID, time.Now().Unix(), payload,
	)
	if err != nil {
		return &PersistenceError{Op: "save", DeviceID: deviceID, Err: err}
	}
	return nil
}

// Clear deletes the device's row. Deleting an absent row is a no-op.
func (s *SQLiteStore) Clear(deviceID string) error {
	if _, err := s.db.Exec("DELETE FROM trace_cache WHERE device_id = ?", deviceID); err != nil {
		return &PersistenceError{Op: "clear", DeviceID: deviceID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

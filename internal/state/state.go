// Package state persists local application state in a bbolt database:
// per-source log tail cursors so logs_tail resumes where the previous
// call stopped, across calls and across process restarts.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	stateOpenTimeout = 5 * time.Second
)

var logCursorBucket = []byte("log_cursors")

// LogCursor is the resume point for one log source on one tenant.
type LogCursor struct {
	Cookie    string `json:"cookie"`
	UpdatedAt int64  `json:"updatedAt"` // milliseconds since epoch
}

func cursorKey(tenantHost, source string) []byte {
	return []byte(tenantHost + ":" + source)
}

// State wraps a bbolt database for all persistent application state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at path, creating it and its directory
// if they do not exist.
func Load(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(logCursorBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state buckets: %w", err)
	}

	return &State{db: db}, nil
}

// Close releases the database lock.
func (s *State) Close() error {
	return s.db.Close()
}

// LogCursor returns the saved cursor for a tenant/source pair, or a
// zero cursor when none is saved.
func (s *State) LogCursor(tenantHost, source string) (LogCursor, error) {
	var cur LogCursor

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(logCursorBucket).Get(cursorKey(tenantHost, source))
		if raw == nil {
			return nil
		}

		return json.Unmarshal(raw, &cur)
	})
	if err != nil {
		return LogCursor{}, fmt.Errorf("reading log cursor: %w", err)
	}

	return cur, nil
}

// SaveLogCursor records the resume point for a tenant/source pair. An
// empty cookie clears the cursor so the next tail starts fresh.
func (s *State) SaveLogCursor(tenantHost, source, cookie string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(logCursorBucket)
		key := cursorKey(tenantHost, source)

		if cookie == "" {
			return b.Delete(key)
		}

		raw, err := json.Marshal(LogCursor{
			Cookie:    cookie,
			UpdatedAt: time.Now().UnixMilli(),
		})
		if err != nil {
			return err
		}

		return b.Put(key, raw)
	})
	if err != nil {
		return fmt.Errorf("saving log cursor: %w", err)
	}

	return nil
}

// Package settings persists user configuration for the relay: the remote
// API key, the post-processing toggle, and the last delivered
// transcription.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// Persisted keys.
const (
	keyAPIKey         = "apiKey"
	keyPostProcessing = "postProcessing"
	keyTranscription  = "transcription"
)

// Snapshot is a one-time read of the configuration a pipeline run needs.
// It is fetched fresh per run, never cached.
type Snapshot struct {
	APIKey         string
	PostProcessing bool
}

// Store is a SQLite-backed key-value settings store.
type Store struct {
	db *sql.DB
}

// Open initializes the store at the given path, creating parent directories
// and the schema as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}

// Snapshot reads the API key and post-processing flag. A missing API key
// yields an empty string; the post-processing flag defaults to false.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	apiKey, _, err := s.get(ctx, keyAPIKey)
	if err != nil {
		return Snapshot{}, err
	}
	raw, ok, err := s.get(ctx, keyPostProcessing)
	if err != nil {
		return Snapshot{}, err
	}
	post := false
	if ok {
		post, err = strconv.ParseBool(raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("parse %s: %w", keyPostProcessing, err)
		}
	}
	return Snapshot{APIKey: apiKey, PostProcessing: post}, nil
}

// SetAPIKey stores the remote API key.
func (s *Store) SetAPIKey(ctx context.Context, apiKey string) error {
	return s.set(ctx, keyAPIKey, apiKey)
}

// SetPostProcessing stores the post-processing toggle.
func (s *Store) SetPostProcessing(ctx context.Context, enabled bool) error {
	return s.set(ctx, keyPostProcessing, strconv.FormatBool(enabled))
}

// SetTranscription stores the last delivered transcription so a freshly
// opened popup can show it.
func (s *Store) SetTranscription(ctx context.Context, text string) error {
	return s.set(ctx, keyTranscription, text)
}

// LastTranscription returns the most recently stored transcription, or ""
// if none has been stored yet.
func (s *Store) LastTranscription(ctx context.Context) (string, error) {
	value, _, err := s.get(ctx, keyTranscription)
	return value, err
}

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riftapp/rift/internal/model"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Slot names for the persisted entries. The collection and the session
// are independent entries; each save rewrites its slot in full.
const (
	slotBooks   = "books"
	slotFilter  = "filter"
	slotSession = "session"
)

// Store provides SQLite-backed persistence for the local mirror of the
// collection, the active filter, and the remote session blob.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the store at the given path, configuring WAL mode and
// running the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.db.PingContext(ctx)
}

// LoadCollection reads the persisted collection. An absent or malformed
// slot yields an empty collection, never an error: the slot is a mirror
// and a bad mirror must not take the application down.
func (s *Store) LoadCollection(ctx context.Context) (model.Collection, error) {
	defer observeDB(ctx, "db.load_collection")()

	raw, err := s.readSlot(ctx, slotBooks)
	if errors.Is(err, ErrNotFound) {
		return model.Collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	var books model.Collection
	if err := json.Unmarshal(raw, &books); err != nil {
		s.logger.Warn("discarding malformed collection slot", "error", err)
		return model.Collection{}, nil
	}
	if books == nil {
		books = model.Collection{}
	}
	return books, nil
}

// SaveCollection writes the full JSON serialization of the collection.
// Write failures are returned to the caller: after an error the
// in-memory collection may be ahead of what is durably saved.
func (s *Store) SaveCollection(ctx context.Context, books model.Collection) error {
	defer observeDB(ctx, "db.save_collection")()

	if books == nil {
		books = model.Collection{}
	}
	raw, err := json.Marshal(books)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	if err := s.writeSlot(ctx, slotBooks, raw); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

// LoadFilter returns the persisted filter, defaulting to "all".
func (s *Store) LoadFilter(ctx context.Context) (string, error) {
	defer observeDB(ctx, "db.load_filter")()

	raw, err := s.readSlot(ctx, slotFilter)
	if errors.Is(err, ErrNotFound) {
		return "all", nil
	}
	if err != nil {
		return "", fmt.Errorf("load filter: %w", err)
	}
	return string(raw), nil
}

// SaveFilter persists the active filter.
func (s *Store) SaveFilter(ctx context.Context, filter string) error {
	defer observeDB(ctx, "db.save_filter")()

	if err := s.writeSlot(ctx, slotFilter, []byte(filter)); err != nil {
		return fmt.Errorf("save filter: %w", err)
	}
	return nil
}

// LoadSession reads the opaque session blob. Returns ErrNotFound when no
// session has been persisted.
func (s *Store) LoadSession(ctx context.Context) ([]byte, error) {
	defer observeDB(ctx, "db.load_session")()
	return s.readSlot(ctx, slotSession)
}

// SaveSession persists the opaque session blob.
func (s *Store) SaveSession(ctx context.Context, blob []byte) error {
	defer observeDB(ctx, "db.save_session")()

	if err := s.writeSlot(ctx, slotSession, blob); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes the persisted session blob, if any.
func (s *Store) DeleteSession(ctx context.Context) error {
	defer observeDB(ctx, "db.delete_session")()

	_, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, slotSession)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) readSlot(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) writeSlot(ctx context.Context, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

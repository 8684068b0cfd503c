// Package sqlitestore persists tasks, versions and the journal in a single
// SQLite file. It backs single-node deployments and the import command.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DB bundles the three stores over one connection.
type DB struct {
	db       *sql.DB
	Tasks    *TaskStore
	Versions *VersionStore
	Journal  *JournalStore
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &DB{
		db:       db,
		Tasks:    &TaskStore{db: db},
		Versions: &VersionStore{db: db},
		Journal:  &JournalStore{db: db},
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}
	if err := s.Tasks.EnsureTable(ctx); err != nil {
		return err
	}
	if err := s.Versions.EnsureTable(ctx); err != nil {
		return err
	}
	return s.Journal.EnsureTable(ctx)
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// Timestamps are stored as microseconds since the epoch so they survive a
// round trip exactly.
func micros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func marshalText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// placeholders returns "?, ?, ..." with n markers and the matching args.
func placeholders(ids []string) (string, []any) {
	args := make([]any, len(ids))
	marks := make([]byte, 0, 3*len(ids))
	for i, id := range ids {
		if i > 0 {
			marks = append(marks, ", "...)
		}
		marks = append(marks, '?')
		args[i] = id
	}
	return string(marks), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// VersionStore implements version.Store.
type VersionStore struct {
	db *sql.DB
}

var _ version.Store = (*VersionStore)(nil)

const versionColumns = `id, task_id, parent_id, data, label, author_id, created_at`

// EnsureTable creates the task_versions table. It must run after the tasks
// table exists.
func (s *VersionStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS task_versions (
			id         TEXT PRIMARY KEY,
			task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			parent_id  TEXT,
			data       TEXT NOT NULL DEFAULT '{}',
			label      TEXT NOT NULL DEFAULT '',
			author_id  TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_task_versions_task ON task_versions(task_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("create task_versions table: %w", err)
	}
	return nil
}

func (s *VersionStore) Insert(ctx context.Context, v *version.Version) (*version.Version, error) {
	if err := insertVersion(ctx, s.db, v); err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

func (s *VersionStore) InsertMany(ctx context.Context, vs []*version.Version) error {
	if len(vs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, v := range vs {
		if err := insertVersion(ctx, tx, v); err != nil {
			return fmt.Errorf("insert version %s: %w", v.ID, err)
		}
	}
	return tx.Commit()
}

func insertVersion(ctx context.Context, q execer, v *version.Version) error {
	data, err := json.Marshal(v.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO task_versions (`+versionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TaskID, v.ParentID, string(data), v.Label, v.AuthorID, micros(v.CreatedAt))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("task %s: %w", v.TaskID, task.ErrNotFound)
	}
	return err
}

func (s *VersionStore) Get(ctx context.Context, taskID, versionID string) (*version.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM task_versions WHERE task_id = ? AND id = ?`, taskID, versionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, version.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get version %s/%s: %w", taskID, versionID, err)
	}
	return v, nil
}

func (s *VersionStore) List(ctx context.Context, taskID string) ([]*version.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM task_versions WHERE task_id = ? ORDER BY created_at ASC, rowid ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", taskID, err)
	}
	defer rows.Close()

	var versions []*version.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("list versions %s: %w", taskID, err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *VersionStore) Links(ctx context.Context, taskIDs []string) ([]version.Link, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	marks, args := placeholders(taskIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, parent_id, label FROM task_versions WHERE task_id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("version links: %w", err)
	}
	defer rows.Close()

	var links []version.Link
	for rows.Next() {
		var l version.Link
		if err := rows.Scan(&l.ID, &l.TaskID, &l.ParentID, &l.Label); err != nil {
			return nil, fmt.Errorf("version links: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Update patches a version's snapshot and label in one statement.
func (s *VersionStore) Update(ctx context.Context, taskID, versionID string, p version.Patch) (*version.Version, error) {
	if p.Empty() {
		return s.Get(ctx, taskID, versionID)
	}

	var sets []string
	var args []any
	if p.Snapshot != nil {
		data, err := json.Marshal(p.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot: %w", err)
		}
		sets = append(sets, "data = ?")
		args = append(args, string(data))
	}
	if p.Label != nil {
		sets = append(sets, "label = ?")
		args = append(args, *p.Label)
	}
	args = append(args, taskID, versionID)

	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`UPDATE task_versions SET `+strings.Join(sets, ", ")+` WHERE task_id = ? AND id = ? RETURNING `+versionColumns,
		args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, version.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update version %s/%s: %w", taskID, versionID, err)
	}
	return v, nil
}

func scanVersion(row rowScanner) (*version.Version, error) {
	var v version.Version
	var data string
	var created int64
	if err := row.Scan(&v.ID, &v.TaskID, &v.ParentID, &data, &v.Label, &v.AuthorID, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &v.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", v.ID, err)
	}
	v.CreatedAt = fromMicros(created)
	return &v, nil
}

package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"taskvault/internal/db"
	"taskvault/pkg/task"
)

// foreignKeyViolation is the SQLSTATE Postgres reports when task_id names
// no task.
const foreignKeyViolation = "23503"

// PgStore is a PostgreSQL-backed version store.
type PgStore struct {
	db db.Runner
}

// NewPgStore creates a PgStore.
func NewPgStore(d db.Runner) *PgStore {
	return &PgStore{db: d}
}

const versionColumns = `id, task_id, parent_id, data, label, author_id, created_at`

// EnsureTable creates the task_versions table if it doesn't exist. It must
// run after the tasks table exists.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	return s.db.Do(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS task_versions (
				id         TEXT PRIMARY KEY,
				task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				parent_id  TEXT,
				data       JSONB NOT NULL DEFAULT '{}',
				label      TEXT NOT NULL DEFAULT '',
				author_id  TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_task_versions_task ON task_versions(task_id, created_at)`)
		return err
	})
}

// Insert persists a single version.
func (s *PgStore) Insert(ctx context.Context, v *Version) (*Version, error) {
	err := s.db.Do(ctx, func(q db.Querier) error {
		return insertVersion(ctx, q, v)
	})
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

// InsertMany persists every version in one transaction; on error none are kept.
func (s *PgStore) InsertMany(ctx context.Context, vs []*Version) error {
	if len(vs) == 0 {
		return nil
	}
	err := s.db.Tx(ctx, func(q db.Querier) error {
		for _, v := range vs {
			if err := insertVersion(ctx, q, v); err != nil {
				return fmt.Errorf("version %s: %w", v.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert versions: %w", err)
	}
	return nil
}

func insertVersion(ctx context.Context, q db.Querier, v *Version) error {
	data, err := json.Marshal(v.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO task_versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)`,
		v.ID, v.TaskID, v.ParentID, string(data), v.Label, v.AuthorID, v.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("task %s: %w", v.TaskID, task.ErrNotFound)
	}
	return err
}

// Get retrieves a version by task and version id.
func (s *PgStore) Get(ctx context.Context, taskID, versionID string) (*Version, error) {
	var v *Version
	err := s.db.Do(ctx, func(q db.Querier) error {
		var err error
		v, err = scanVersion(q.QueryRow(ctx,
			`SELECT `+versionColumns+` FROM task_versions WHERE task_id = $1 AND id = $2`, taskID, versionID))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get version %s/%s: %w", taskID, versionID, err)
	}
	return v, nil
}

// List returns a task's versions oldest first.
func (s *PgStore) List(ctx context.Context, taskID string) ([]*Version, error) {
	var versions []*Version
	err := s.db.Do(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx,
			`SELECT `+versionColumns+` FROM task_versions WHERE task_id = $1 ORDER BY created_at ASC, id ASC`, taskID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			v, err := scanVersion(rows)
			if err != nil {
				return err
			}
			versions = append(versions, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", taskID, err)
	}
	return versions, nil
}

// Links returns parent links and labels for the listed tasks.
func (s *PgStore) Links(ctx context.Context, taskIDs []string) ([]Link, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var links []Link
	err := s.db.Do(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx,
			`SELECT id, task_id, parent_id, label FROM task_versions WHERE task_id = ANY($1)`, taskIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var l Link
			if err := rows.Scan(&l.ID, &l.TaskID, &l.ParentID, &l.Label); err != nil {
				return err
			}
			links = append(links, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("version links: %w", err)
	}
	return links, nil
}

// Update patches a version's snapshot and label in one statement.
func (s *PgStore) Update(ctx context.Context, taskID, versionID string, p Patch) (*Version, error) {
	if p.Empty() {
		return s.Get(ctx, taskID, versionID)
	}

	setClauses := ""
	var args []any
	argIdx := 1
	if p.Snapshot != nil {
		data, err := json.Marshal(p.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot: %w", err)
		}
		setClauses = fmt.Sprintf("data = $%d::jsonb", argIdx)
		args = append(args, string(data))
		argIdx++
	}
	if p.Label != nil {
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += fmt.Sprintf("label = $%d", argIdx)
		args = append(args, *p.Label)
		argIdx++
	}
	args = append(args, taskID, versionID)
	query := fmt.Sprintf(`UPDATE task_versions SET %s WHERE task_id = $%d AND id = $%d RETURNING `+versionColumns,
		setClauses, argIdx, argIdx+1)

	var v *Version
	err := s.db.Do(ctx, func(q db.Querier) error {
		var err error
		v, err = scanVersion(q.QueryRow(ctx, query, args...))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update version %s/%s: %w", taskID, versionID, err)
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*Version, error) {
	var v Version
	var data []byte
	if err := row.Scan(&v.ID, &v.TaskID, &v.ParentID, &data, &v.Label, &v.AuthorID, &v.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &v.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", v.ID, err)
	}
	return &v, nil
}

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taskvault/internal/db"
)

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	db db.Runner
}

// NewPgStore creates a PgStore.
func NewPgStore(d db.Runner) *PgStore {
	return &PgStore{db: d}
}

const taskColumns = `id, prompt, inputs, outputs, unit_tests, solution, code_file, language, "group",
	difficulty, topics, time_complexity, space_complexity, meta, notes, last_run_successful,
	head_version_id, created_at, updated_at`

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	return s.db.Do(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS tasks (
				id                  TEXT PRIMARY KEY,
				prompt              TEXT NOT NULL DEFAULT '',
				inputs              TEXT NOT NULL DEFAULT '',
				outputs             TEXT NOT NULL DEFAULT '',
				unit_tests          TEXT NOT NULL DEFAULT '',
				solution            TEXT NOT NULL DEFAULT '',
				code_file           TEXT NOT NULL DEFAULT '',
				language            TEXT,
				"group"             TEXT,
				difficulty          TEXT NOT NULL DEFAULT 'Easy',
				topics              TEXT[] NOT NULL DEFAULT '{}',
				time_complexity     TEXT NOT NULL DEFAULT '',
				space_complexity    TEXT NOT NULL DEFAULT '',
				meta                JSONB NOT NULL DEFAULT '{}',
				notes               TEXT NOT NULL DEFAULT '',
				last_run_successful BOOLEAN NOT NULL DEFAULT FALSE,
				head_version_id     TEXT,
				created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC)`)
		return err
	})
}

// Create inserts a new task.
func (s *PgStore) Create(ctx context.Context, t *Task) (*Task, error) {
	err := s.db.Do(ctx, func(q db.Querier) error {
		return insertTask(ctx, q, t)
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// CreateMany inserts all tasks in one transaction; on error none are kept.
func (s *PgStore) CreateMany(ctx context.Context, ts []*Task) error {
	if len(ts) == 0 {
		return nil
	}
	err := s.db.Tx(ctx, func(q db.Querier) error {
		for _, t := range ts {
			if err := insertTask(ctx, q, t); err != nil {
				return fmt.Errorf("task %s: %w", t.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}
	return nil
}

func insertTask(ctx context.Context, q db.Querier, t *Task) error {
	metaJSON, err := json.Marshal(cloneMap(t.Meta))
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	c := t.Columns
	_, err = q.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15, $16, $17, $18, $19)`,
		t.ID, c.Prompt, c.Inputs, c.Outputs, c.UnitTests, c.Solution, c.CodeFile, c.Language, c.Group,
		string(c.Difficulty), topicsOrEmpty(c.Topics), c.TimeComplexity, c.SpaceComplexity, string(metaJSON),
		t.Notes, t.LastRunSuccessful, t.HeadVersionID, t.CreatedAt, t.UpdatedAt)
	return err
}

// Get retrieves a single task by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Task, error) {
	var t *Task
	err := s.db.Do(ctx, func(q db.Querier) error {
		var err error
		t, err = scanTask(q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// List returns tasks newest first.
func (s *PgStore) List(ctx context.Context, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var tasks []*Task
	err := s.db.Do(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		tasks, err = scanTaskRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Heads returns the head version id of each listed task that exists.
func (s *PgStore) Heads(ctx context.Context, ids []string) (map[string]*string, error) {
	heads := make(map[string]*string, len(ids))
	if len(ids) == 0 {
		return heads, nil
	}
	err := s.db.Do(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx, `SELECT id, head_version_id FROM tasks WHERE id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var head *string
			if err := rows.Scan(&id, &head); err != nil {
				return err
			}
			heads[id] = head
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("task heads: %w", err)
	}
	return heads, nil
}

// Update applies u in a single statement and reports the rows written.
func (s *PgStore) Update(ctx context.Context, id string, u Update) (int64, error) {
	// Build SET clause dynamically
	setClauses := "updated_at = $1"
	args := []any{u.UpdatedAt}
	argIdx := 2

	set := func(column string, v any) {
		setClauses += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, v)
		argIdx++
	}

	if u.Fields != nil {
		var row Task
		row.SetFields(*u.Fields)
		metaJSON, err := json.Marshal(row.Meta)
		if err != nil {
			return 0, fmt.Errorf("marshal meta: %w", err)
		}
		c := row.Columns
		set("prompt", c.Prompt)
		set("inputs", c.Inputs)
		set("outputs", c.Outputs)
		set("unit_tests", c.UnitTests)
		set("solution", c.Solution)
		set("code_file", c.CodeFile)
		set("language", c.Language)
		set(`"group"`, c.Group)
		set("difficulty", string(c.Difficulty))
		set("topics", topicsOrEmpty(c.Topics))
		set("time_complexity", c.TimeComplexity)
		set("space_complexity", c.SpaceComplexity)
		setClauses += fmt.Sprintf(", meta = $%d::jsonb", argIdx)
		args = append(args, string(metaJSON))
		argIdx++
	}
	if u.Notes != nil {
		set("notes", *u.Notes)
	}
	if u.LastRunSuccessful != nil {
		set("last_run_successful", *u.LastRunSuccessful)
	}
	if u.HeadVersionID != nil {
		set("head_version_id", *u.HeadVersionID)
	}

	where := fmt.Sprintf("id = $%d", argIdx)
	args = append(args, id)
	argIdx++
	if u.IfUpdatedAt != nil {
		where += fmt.Sprintf(" AND updated_at = $%d", argIdx)
		args = append(args, *u.IfUpdatedAt)
	}

	var n int64
	err := s.db.Do(ctx, func(q db.Querier) error {
		tag, err := q.Exec(ctx, fmt.Sprintf("UPDATE tasks SET %s WHERE %s", setClauses, where), args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("update task %s: %w", id, err)
	}
	return n, nil
}

// Delete removes a task. Its versions go with it through the foreign key.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	err := s.db.Do(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// Count returns total task count.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.Do(ctx, func(q db.Querier) error {
		return q.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	})
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var c Canonical
	var difficulty string
	var metaJSON []byte
	err := row.Scan(&t.ID, &c.Prompt, &c.Inputs, &c.Outputs, &c.UnitTests, &c.Solution, &c.CodeFile,
		&c.Language, &c.Group, &difficulty, &c.Topics, &c.TimeComplexity, &c.SpaceComplexity, &metaJSON,
		&t.Notes, &t.LastRunSuccessful, &t.HeadVersionID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Difficulty = Difficulty(difficulty)
	t.Columns = c
	if err := json.Unmarshal(metaJSON, &t.Meta); err != nil || t.Meta == nil {
		t.Meta = map[string]any{}
	}
	return &t, nil
}

func scanTaskRows(rows pgx.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

func topicsOrEmpty(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}

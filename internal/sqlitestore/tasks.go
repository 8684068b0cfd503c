package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"taskvault/pkg/task"
)

// TaskStore implements task.Store.
type TaskStore struct {
	db *sql.DB
}

var _ task.Store = (*TaskStore)(nil)

const taskColumns = `id, prompt, inputs, outputs, unit_tests, solution, code_file, language, "group",
	difficulty, topics, time_complexity, space_complexity, meta, notes, last_run_successful,
	head_version_id, created_at, updated_at`

// EnsureTable creates the tasks table if it doesn't exist.
func (s *TaskStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
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
			topics              TEXT NOT NULL DEFAULT '[]',
			time_complexity     TEXT NOT NULL DEFAULT '',
			space_complexity    TEXT NOT NULL DEFAULT '',
			meta                TEXT NOT NULL DEFAULT '{}',
			notes               TEXT NOT NULL DEFAULT '',
			last_run_successful BOOLEAN NOT NULL DEFAULT 0,
			head_version_id     TEXT,
			created_at          INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

func (s *TaskStore) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := insertTask(ctx, s.db, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// CreateMany inserts all tasks in one transaction.
func (s *TaskStore) CreateMany(ctx context.Context, ts []*task.Task) error {
	if len(ts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range ts {
		if err := insertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("create task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTask(ctx context.Context, q execer, t *task.Task) error {
	meta := t.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := marshalText(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	c := t.Columns
	topicsJSON, err := marshalText(topicsOrEmpty(c.Topics))
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, c.Prompt, c.Inputs, c.Outputs, c.UnitTests, c.Solution, c.CodeFile, c.Language, c.Group,
		string(c.Difficulty), topicsJSON, c.TimeComplexity, c.SpaceComplexity, metaJSON,
		t.Notes, t.LastRunSuccessful, t.HeadVersionID, micros(t.CreatedAt), micros(t.UpdatedAt))
	return err
}

func (s *TaskStore) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

func (s *TaskStore) List(ctx context.Context, limit int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Heads(ctx context.Context, ids []string) (map[string]*string, error) {
	heads := make(map[string]*string, len(ids))
	if len(ids) == 0 {
		return heads, nil
	}
	marks, args := placeholders(ids)
	rows, err := s.db.QueryContext(ctx, `SELECT id, head_version_id FROM tasks WHERE id IN (`+marks+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("task heads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var head *string
		if err := rows.Scan(&id, &head); err != nil {
			return nil, fmt.Errorf("task heads: %w", err)
		}
		heads[id] = head
	}
	return heads, rows.Err()
}

// Update applies u in a single statement and reports the rows written.
func (s *TaskStore) Update(ctx context.Context, id string, u task.Update) (int64, error) {
	sets := []string{"updated_at = ?"}
	args := []any{micros(u.UpdatedAt)}
	set := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}

	if u.Fields != nil {
		var row task.Task
		row.SetFields(*u.Fields)
		metaJSON, err := marshalText(row.Meta)
		if err != nil {
			return 0, fmt.Errorf("marshal meta: %w", err)
		}
		c := row.Columns
		topicsJSON, err := marshalText(topicsOrEmpty(c.Topics))
		if err != nil {
			return 0, fmt.Errorf("marshal topics: %w", err)
		}
		set("prompt", c.Prompt)
		set("inputs", c.Inputs)
		set("outputs", c.Outputs)
		set("unit_tests", c.UnitTests)
		set("solution", c.Solution)
		set("code_file", c.CodeFile)
		set("language", c.Language)
		set(`"group"`, c.Group)
		set("difficulty", string(c.Difficulty))
		set("topics", topicsJSON)
		set("time_complexity", c.TimeComplexity)
		set("space_complexity", c.SpaceComplexity)
		set("meta", metaJSON)
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

	where := "id = ?"
	args = append(args, id)
	if u.IfUpdatedAt != nil {
		where += " AND updated_at = ?"
		args = append(args, micros(*u.IfUpdatedAt))
	}

	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update task %s: %w", id, err)
	}
	return res.RowsAffected()
}

// Delete removes a task. Its versions go with it through the foreign key.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s *TaskStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var c task.Canonical
	var difficulty, topicsJSON, metaJSON string
	var created, updated int64
	err := row.Scan(&t.ID, &c.Prompt, &c.Inputs, &c.Outputs, &c.UnitTests, &c.Solution, &c.CodeFile,
		&c.Language, &c.Group, &difficulty, &topicsJSON, &c.TimeComplexity, &c.SpaceComplexity, &metaJSON,
		&t.Notes, &t.LastRunSuccessful, &t.HeadVersionID, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.Difficulty = task.Difficulty(difficulty)
	if err := json.Unmarshal([]byte(topicsJSON), &c.Topics); err != nil || c.Topics == nil {
		c.Topics = []string{}
	}
	t.Columns = c
	if err := json.Unmarshal([]byte(metaJSON), &t.Meta); err != nil || t.Meta == nil {
		t.Meta = map[string]any{}
	}
	t.CreatedAt = fromMicros(created)
	t.UpdatedAt = fromMicros(updated)
	return &t, nil
}

func topicsOrEmpty(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}

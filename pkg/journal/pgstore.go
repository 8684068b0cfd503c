package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"taskvault/internal/db"
)

// PgStore is a PostgreSQL-backed journal with hash-chained integrity.
type PgStore struct {
	db db.Runner
}

// NewPgStore creates a PgStore.
func NewPgStore(d db.Runner) *PgStore {
	return &PgStore{db: d}
}

const entryColumns = `seq, id, kind, task_id, version_id, actor_id, at, detail, hash, prev_hash`

// EnsureTable creates the journal table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	return s.db.Do(ctx, func(q db.Querier) error {
		_, err := q.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS journal (
				seq        BIGINT NOT NULL DEFAULT 0,
				id         TEXT PRIMARY KEY,
				kind       TEXT NOT NULL,
				task_id    TEXT NOT NULL,
				version_id TEXT NOT NULL DEFAULT '',
				actor_id   TEXT NOT NULL DEFAULT '',
				at         TIMESTAMPTZ NOT NULL,
				detail     JSONB NOT NULL DEFAULT '{}',
				hash       TEXT NOT NULL,
				prev_hash  TEXT NOT NULL DEFAULT ''
			)`)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `ALTER TABLE journal ADD COLUMN IF NOT EXISTS seq BIGINT NOT NULL DEFAULT 0`)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_journal_seq ON journal(seq, at, id)`)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_journal_task ON journal(task_id)`)
		return err
	})
}

// Append links e to the chain tip. Appends are serialized with a
// transaction-scoped advisory lock so two writers never share a tip.
func (s *PgStore) Append(ctx context.Context, e Entry) (*Entry, error) {
	err := s.db.Tx(ctx, func(q db.Querier) error {
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('journal'))`); err != nil {
			return fmt.Errorf("lock chain: %w", err)
		}

		var (
			prevSeq  int64
			prevHash string
		)
		err := q.QueryRow(ctx, `SELECT seq, hash FROM journal ORDER BY seq DESC, at DESC, id DESC LIMIT 1`).Scan(&prevSeq, &prevHash)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read chain tip: %w", err)
		}
		e.Seq = prevSeq + 1
		if err := Seal(&e, prevHash); err != nil {
			return err
		}

		detailJSON, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO journal (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)`,
			e.Seq, e.ID, e.Kind, e.TaskID, e.VersionID, e.ActorID, e.At, string(detailJSON), e.Hash, e.PrevHash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("append journal entry: %w", err)
	}
	return &e, nil
}

// ByTask returns a task's entries in chain order.
func (s *PgStore) ByTask(ctx context.Context, taskID string, limit int) ([]Entry, error) {
	return s.scanMany(ctx, `
		SELECT `+entryColumns+` FROM journal WHERE task_id = $1
		ORDER BY seq ASC, at ASC, id ASC LIMIT NULLIF($2::int, 0)`, taskID, limit)
}

// All returns the whole chain in order.
func (s *PgStore) All(ctx context.Context) ([]Entry, error) {
	return s.scanMany(ctx, `SELECT `+entryColumns+` FROM journal ORDER BY seq ASC, at ASC, id ASC`)
}

func (s *PgStore) scanMany(ctx context.Context, query string, args ...any) ([]Entry, error) {
	var entries []Entry
	err := s.db.Do(ctx, func(q db.Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e Entry
			var detailJSON []byte
			if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &e.TaskID, &e.VersionID, &e.ActorID, &e.At, &detailJSON, &e.Hash, &e.PrevHash); err != nil {
				return err
			}
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return fmt.Errorf("unmarshal detail: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return entries, nil
}

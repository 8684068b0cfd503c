package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"taskvault/pkg/journal"
)

// JournalStore implements journal.Store.
type JournalStore struct {
	db *sql.DB
}

var _ journal.Store = (*JournalStore)(nil)

const entryColumns = `seq, id, kind, task_id, version_id, actor_id, at, detail, hash, prev_hash`

// EnsureTable creates the journal table if it doesn't exist.
func (s *JournalStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS journal (
			seq        INTEGER NOT NULL DEFAULT 0,
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			task_id    TEXT NOT NULL,
			version_id TEXT NOT NULL DEFAULT '',
			actor_id   TEXT NOT NULL DEFAULT '',
			at         INTEGER NOT NULL,
			detail     TEXT NOT NULL DEFAULT '{}',
			hash       TEXT NOT NULL,
			prev_hash  TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_journal_task ON journal(task_id);
	`)
	if err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	if err := s.addSeqColumn(ctx); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_journal_seq ON journal(seq, at, id)`)
	if err != nil {
		return fmt.Errorf("create journal index: %w", err)
	}
	return nil
}

// addSeqColumn upgrades journals created before entries carried a sequence.
func (s *JournalStore) addSeqColumn(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info('journal') WHERE name = 'seq'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect journal table: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE journal ADD COLUMN seq INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("add journal seq: %w", err)
	}
	return nil
}

// Append links e to the chain tip inside one transaction. The store holds a
// single connection, so appends never interleave.
func (s *JournalStore) Append(ctx context.Context, e journal.Entry) (*journal.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("append journal entry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		prevSeq  int64
		prevHash string
	)
	err = tx.QueryRowContext(ctx, `SELECT seq, hash FROM journal ORDER BY seq DESC, at DESC, id DESC LIMIT 1`).Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	e.Seq = prevSeq + 1
	if err := journal.Seal(&e, prevHash); err != nil {
		return nil, err
	}
	detailJSON, err := marshalText(e.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO journal (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.ID, e.Kind, e.TaskID, e.VersionID, e.ActorID, micros(e.At), detailJSON, e.Hash, e.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("append journal entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("append journal entry: %w", err)
	}
	return &e, nil
}

func (s *JournalStore) ByTask(ctx context.Context, taskID string, limit int) ([]journal.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal WHERE task_id = ? ORDER BY seq ASC, at ASC, id ASC`
	args := []any{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.scanMany(ctx, query, args...)
}

func (s *JournalStore) All(ctx context.Context) ([]journal.Entry, error) {
	return s.scanMany(ctx, `SELECT `+entryColumns+` FROM journal ORDER BY seq ASC, at ASC, id ASC`)
}

func (s *JournalStore) scanMany(ctx context.Context, query string, args ...any) ([]journal.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var at int64
		var detail string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &e.TaskID, &e.VersionID, &e.ActorID, &at, &detail, &e.Hash, &e.PrevHash); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.At = fromMicros(at)
		if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal detail: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

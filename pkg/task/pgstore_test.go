package task

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskvault/internal/db"
)

var errInsert = errors.New("insert failed")

// stagedQuerier records the first argument of every Exec and fails the
// failAt-th one.
type stagedQuerier struct {
	failAt int
	execs  int
	staged []string
}

func (q *stagedQuerier) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	q.execs++
	if q.execs == q.failAt {
		return pgconn.CommandTag{}, errInsert
	}
	q.staged = append(q.staged, args[0].(string))
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (q *stagedQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (q *stagedQuerier) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

// fakeRunner keeps autocommitted statements from Do and only the
// statements of a successful Tx.
type fakeRunner struct {
	failAt    int
	calls     []string
	committed []string
}

func (r *fakeRunner) Do(_ context.Context, fn func(db.Querier) error) error {
	r.calls = append(r.calls, "do")
	q := &stagedQuerier{failAt: r.failAt}
	err := fn(q)
	r.committed = append(r.committed, q.staged...)
	return err
}

func (r *fakeRunner) Tx(_ context.Context, fn func(db.Querier) error) error {
	r.calls = append(r.calls, "tx")
	q := &stagedQuerier{failAt: r.failAt}
	if err := fn(q); err != nil {
		return err
	}
	r.committed = append(r.committed, q.staged...)
	return nil
}

func newTasks(n int) ([]*Task, []string) {
	ts := make([]*Task, n)
	ids := make([]string, n)
	for i := range ts {
		ts[i] = New(map[string]any{"prompt": "p"}, testNow)
		ids[i] = ts[i].ID
	}
	return ts, ids
}

func TestPgCreateManyIsAllOrNothing(t *testing.T) {
	t.Run("failure keeps no rows", func(t *testing.T) {
		r := &fakeRunner{failAt: 3}
		ts, _ := newTasks(4)

		err := NewPgStore(r).CreateMany(context.Background(), ts)
		require.ErrorIs(t, err, errInsert)
		assert.Contains(t, err.Error(), ts[2].ID)
		assert.Empty(t, r.committed)
		assert.Equal(t, []string{"tx"}, r.calls)
	})

	t.Run("success keeps every row in order", func(t *testing.T) {
		r := &fakeRunner{}
		ts, ids := newTasks(4)

		require.NoError(t, NewPgStore(r).CreateMany(context.Background(), ts))
		assert.Equal(t, ids, r.committed)
		assert.Equal(t, []string{"tx"}, r.calls)
	})

	t.Run("empty batch skips the database", func(t *testing.T) {
		r := &fakeRunner{}
		require.NoError(t, NewPgStore(r).CreateMany(context.Background(), nil))
		assert.Empty(t, r.calls)
	})
}

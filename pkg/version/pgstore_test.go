package version

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskvault/internal/db"
)

var errInsert = errors.New("insert failed")

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

type fakeRunner struct {
	failAt    int
	committed []string
}

func (r *fakeRunner) Do(_ context.Context, fn func(db.Querier) error) error {
	q := &stagedQuerier{failAt: r.failAt}
	err := fn(q)
	r.committed = append(r.committed, q.staged...)
	return err
}

func (r *fakeRunner) Tx(_ context.Context, fn func(db.Querier) error) error {
	q := &stagedQuerier{failAt: r.failAt}
	if err := fn(q); err != nil {
		return err
	}
	r.committed = append(r.committed, q.staged...)
	return nil
}

func TestPgInsertManyIsAllOrNothing(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var vs []*Version
	var ids []string
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("v%d", i)
		vs = append(vs, &Version{ID: id, TaskID: "t", Label: "import", CreatedAt: at})
		ids = append(ids, id)
	}

	failing := &fakeRunner{failAt: 2}
	err := NewPgStore(failing).InsertMany(context.Background(), vs)
	require.ErrorIs(t, err, errInsert)
	assert.Empty(t, failing.committed)

	ok := &fakeRunner{}
	require.NoError(t, NewPgStore(ok).InsertMany(context.Background(), vs))
	assert.Equal(t, ids, ok.committed)
}

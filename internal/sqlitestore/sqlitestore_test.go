package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskvault/internal/identity"
	"taskvault/pkg/history"
	"taskvault/pkg/journal"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 123456000, time.UTC)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "vault", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestTaskRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	tk := task.New(map[string]any{
		"prompt":   "p",
		"language": "go",
		"topics":   "a; b",
		"notes":    "n",
	}, t0)
	tk.Meta["custom"] = "x"
	_, err := db.Tasks.Create(ctx, tk)
	require.NoError(t, err)

	got, err := db.Tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "p", got.Columns.Prompt)
	require.NotNil(t, got.Columns.Language)
	assert.Equal(t, "go", *got.Columns.Language)
	assert.Nil(t, got.Columns.Group)
	assert.Equal(t, []string{"a", "b"}, got.Columns.Topics)
	assert.Equal(t, "x", got.Meta["custom"])
	assert.Equal(t, "n", got.Notes)
	assert.Nil(t, got.HeadVersionID)
	assert.True(t, t0.Equal(got.CreatedAt))

	_, err = db.Tasks.Get(ctx, "missing")
	assert.ErrorIs(t, err, task.ErrNotFound)

	n, err := db.Tasks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTaskListAndHeads(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	var ts []*task.Task
	for i := range 3 {
		ts = append(ts, task.New(map[string]any{"prompt": "p"}, t0.Add(time.Duration(i)*time.Minute)))
	}
	ts[1].HeadVersionID = strPtr("v1")
	require.NoError(t, db.Tasks.CreateMany(ctx, ts))

	all, err := db.Tasks.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ts[2].ID, all[0].ID, "newest first")

	two, err := db.Tasks.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	heads, err := db.Tasks.Heads(ctx, []string{ts[0].ID, ts[1].ID, "nope"})
	require.NoError(t, err)
	assert.Len(t, heads, 2)
	assert.Nil(t, heads[ts[0].ID])
	require.NotNil(t, heads[ts[1].ID])
	assert.Equal(t, "v1", *heads[ts[1].ID])
}

func TestTaskUpdateHonoursIfUpdatedAt(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	tk := task.New(map[string]any{"prompt": "p"}, t0)
	_, err := db.Tasks.Create(ctx, tk)
	require.NoError(t, err)

	f := tk.Fields().Merge(task.NormalizeSnapshot(map[string]any{"prompt": "q"}))
	stale := t0.Add(-time.Second)
	n, err := db.Tasks.Update(ctx, tk.ID, task.Update{Fields: &f, UpdatedAt: t0.Add(time.Second), IfUpdatedAt: &stale})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.Tasks.Update(ctx, tk.ID, task.Update{
		Fields:        &f,
		Notes:         strPtr("edited"),
		HeadVersionID: strPtr("v2"),
		UpdatedAt:     t0.Add(time.Second),
		IfUpdatedAt:   &tk.UpdatedAt,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := db.Tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	want := tk.Clone()
	want.Apply(task.Update{Fields: &f, Notes: strPtr("edited"), HeadVersionID: strPtr("v2"), UpdatedAt: t0.Add(time.Second)})
	assert.Equal(t, want.Fields(), got.Fields())
	assert.Equal(t, "edited", got.Notes)
	assert.Equal(t, "v2", *got.HeadVersionID)

	n, err = db.Tasks.Update(ctx, "missing", task.Update{UpdatedAt: t0})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVersionsCascadeAndForeignKey(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	tk := task.New(map[string]any{"prompt": "p"}, t0)
	_, err := db.Tasks.Create(ctx, tk)
	require.NoError(t, err)

	root := &version.Version{ID: "r", TaskID: tk.ID, Snapshot: tk.Snapshot(), Label: "alice", CreatedAt: t0}
	child := &version.Version{ID: "c", TaskID: tk.ID, ParentID: strPtr("r"), Label: "bob: alice", CreatedAt: t0.Add(time.Second)}
	require.NoError(t, db.Versions.InsertMany(ctx, []*version.Version{child, root}))

	list, err := db.Versions.List(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r", list[0].ID)
	assert.Equal(t, "p", list[0].Snapshot.Prompt)
	assert.True(t, list[0].Snapshot.Has("notes"))

	links, err := db.Versions.Links(ctx, []string{tk.ID})
	require.NoError(t, err)
	assert.Len(t, links, 2)

	_, err = db.Versions.Get(ctx, "other-task", "r")
	assert.ErrorIs(t, err, version.ErrNotFound)

	label := "carol"
	updated, err := db.Versions.Update(ctx, tk.ID, "c", version.Patch{Label: &label})
	require.NoError(t, err)
	assert.Equal(t, "carol", updated.Label)
	require.NotNil(t, updated.ParentID)
	assert.Equal(t, "r", *updated.ParentID)

	_, err = db.Versions.Update(ctx, tk.ID, "zz", version.Patch{Label: &label})
	assert.ErrorIs(t, err, version.ErrNotFound)

	_, err = db.Versions.Insert(ctx, &version.Version{ID: "o", TaskID: "ghost", CreatedAt: t0})
	assert.ErrorIs(t, err, task.ErrNotFound)

	require.NoError(t, db.Tasks.Delete(ctx, tk.ID))
	require.NoError(t, db.Tasks.Delete(ctx, tk.ID))
	list, err = db.Versions.List(ctx, tk.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestJournalChain(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	for i, id := range []string{"t1", "t2", "t1"} {
		_, err := db.Journal.Append(ctx, journal.NewEntry(journal.TaskUpdated, id, "", "u", map[string]any{"n": float64(i)}))
		require.NoError(t, err)
	}
	require.NoError(t, journal.VerifyChain(ctx, db.Journal))

	t1, err := db.Journal.ByTask(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Len(t, t1, 2)

	first, err := db.Journal.ByTask(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, float64(0), first[0].Detail["n"])
}

func TestJournalChainFollowsAppendOrder(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	// Stamped a then b, appended b then a.
	a := journal.NewEntry(journal.TaskUpdated, "t1", "", "u", map[string]any{"n": "a"})
	b := journal.NewEntry(journal.TaskUpdated, "t1", "", "u", map[string]any{"n": "b"})
	a.At = t0
	b.At = t0.Add(time.Second)
	_, err := db.Journal.Append(ctx, b)
	require.NoError(t, err)
	_, err = db.Journal.Append(ctx, a)
	require.NoError(t, err)
	c, err := db.Journal.Append(ctx, journal.NewEntry(journal.TaskUpdated, "t1", "", "u", map[string]any{"n": "c"}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Seq)

	require.NoError(t, journal.VerifyChain(ctx, db.Journal))

	all, err := db.Journal.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	var order []any
	for i, e := range all {
		assert.Equal(t, int64(i+1), e.Seq)
		order = append(order, e.Detail["n"])
	}
	assert.Equal(t, []any{"b", "a", "c"}, order)
	assert.Equal(t, all[1].Hash, all[2].PrevHash)

	byTask, err := db.Journal.ByTask(ctx, "t1", 0)
	require.NoError(t, err)
	require.NoError(t, journal.Verify(byTask))
}

func TestEngineOverSQLite(t *testing.T) {
	db := openTest(t)
	ctx := identity.WithIdentity(context.Background(), identity.Identity{UserID: "u1", Email: "dana@example.com"})
	engine := history.New(db.Tasks, db.Versions, history.Options{Optimistic: true, Journal: db.Journal})

	tk, err := engine.CreateTask(ctx, map[string]any{"prompt": "p"}, history.CreateOptions{InitialVersion: true})
	require.NoError(t, err)
	require.NotNil(t, tk.HeadVersionID)

	snap := task.NormalizeSnapshot(map[string]any{"prompt": "p2", "notes": "saved"})
	res, err := engine.AtomicSave(ctx, history.SaveRequest{TaskID: tk.ID, Snapshot: &snap, ParentID: tk.HeadVersionID})
	require.NoError(t, err)
	assert.True(t, res.Inserted)

	got, err := db.Tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "p2", got.Fields().Canonical.Prompt)
	assert.Equal(t, "saved", got.Notes)
	assert.Equal(t, res.VersionID, *got.HeadVersionID)

	h, err := engine.ListVersions(ctx, tk.ID)
	require.NoError(t, err)
	assert.Len(t, h.Flat, 2)
	require.Len(t, h.Tree, 1)
	assert.Len(t, h.Tree[0].Children, 1)

	require.NoError(t, journal.VerifyChain(ctx, db.Journal))
}

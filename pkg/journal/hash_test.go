package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	now := time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)
	detail, _ := json.Marshal(map[string]any{"key": "value"})

	h1 := computeHash("", "id1", TaskSaved, "task1", "v1", "user1", now, detail)
	h2 := computeHash("", "id1", TaskSaved, "task1", "v1", "user1", now, detail)
	if h1 != h2 {
		t.Fatalf("same inputs should produce same hash: %s != %s", h1, h2)
	}

	h3 := computeHash("", "id2", TaskSaved, "task1", "v1", "user1", now, detail)
	if h1 == h3 {
		t.Fatalf("different ID should produce different hash")
	}

	h4 := computeHash("prevhash", "id1", TaskSaved, "task1", "v1", "user1", now, detail)
	if h1 == h4 {
		t.Fatalf("different prevHash should produce different hash")
	}

	h5 := computeHash("", "id1", TaskSaved, "task1", "v2", "user1", now, detail)
	if h1 == h5 {
		t.Fatalf("different version should produce different hash")
	}
}

func TestComputeHashDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// JSON marshal of map sorts keys deterministically
	d1, _ := json.Marshal(map[string]any{"a": 1, "b": 2})
	d2, _ := json.Marshal(map[string]any{"b": 2, "a": 1})

	h1 := computeHash("", "id", HeadSet, "task", "v", "actor", now, d1)
	h2 := computeHash("", "id", HeadSet, "task", "v", "actor", now, d2)
	if h1 != h2 {
		t.Fatalf("json.Marshal sorts keys, so hashes should match: %s != %s", h1, h2)
	}
}

func chain(t *testing.T, n int) []Entry {
	t.Helper()
	var entries []Entry
	prev := ""
	for i := 0; i < n; i++ {
		e := NewEntry(VersionCreated, "task", "", "actor", map[string]any{"i": i})
		require.NoError(t, Seal(&e, prev))
		prev = e.Hash
		entries = append(entries, e)
	}
	return entries
}

func TestVerify(t *testing.T) {
	t.Run("intact chain", func(t *testing.T) {
		assert.NoError(t, Verify(chain(t, 4)))
	})

	t.Run("empty chain", func(t *testing.T) {
		assert.NoError(t, Verify(nil))
	})

	t.Run("tampered detail", func(t *testing.T) {
		entries := chain(t, 3)
		entries[1].Detail = map[string]any{"i": 99}
		err := Verify(entries)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hash mismatch")
	})

	t.Run("dropped entry", func(t *testing.T) {
		entries := chain(t, 3)
		err := Verify(append(entries[:1:1], entries[2]))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prev_hash mismatch")
	})
}

type sliceStore struct {
	entries []Entry
	err     error
}

func (s *sliceStore) Append(_ context.Context, e Entry) (*Entry, error) {
	prev := ""
	if n := len(s.entries); n > 0 {
		prev = s.entries[n-1].Hash
	}
	if err := Seal(&e, prev); err != nil {
		return nil, err
	}
	s.entries = append(s.entries, e)
	return &e, nil
}

func (s *sliceStore) ByTask(context.Context, string, int) ([]Entry, error) { return s.entries, nil }
func (s *sliceStore) All(context.Context) ([]Entry, error)                 { return s.entries, s.err }
func (s *sliceStore) EnsureTable(context.Context) error                    { return nil }

func TestVerifyChainPropagatesStoreError(t *testing.T) {
	boom := errors.New("boom")
	err := VerifyChain(context.Background(), &sliceStore{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestBusDeliversMatchingEntries(t *testing.T) {
	bus := NewBus(&sliceStore{})
	all := bus.Subscribe("")
	one := bus.Subscribe("task-a")
	defer bus.Unsubscribe(all)
	defer bus.Unsubscribe(one)

	ctx := context.Background()
	_, err := bus.Append(ctx, NewEntry(TaskCreated, "task-b", "", "actor", nil))
	require.NoError(t, err)
	_, err = bus.Append(ctx, NewEntry(TaskCreated, "task-a", "", "actor", nil))
	require.NoError(t, err)

	assert.Equal(t, "task-b", (<-all).TaskID)
	assert.Equal(t, "task-a", (<-all).TaskID)
	assert.Equal(t, "task-a", (<-one).TaskID)
	assert.Empty(t, one)

	require.NoError(t, VerifyChain(ctx, bus))
}

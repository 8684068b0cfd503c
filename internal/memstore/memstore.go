// Package memstore keeps tasks, versions and the journal in process memory.
// Every value crossing the API is copied, so callers never share state with
// the store.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"taskvault/pkg/journal"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// DB bundles the three stores over shared memory so deleting a task also
// drops its versions.
type DB struct {
	Tasks    *TaskStore
	Versions *VersionStore
	Journal  *JournalStore
}

// New returns an empty in-memory database.
func New() *DB {
	versions := &VersionStore{byID: make(map[string]*version.Version)}
	return &DB{
		Tasks:    &TaskStore{byID: make(map[string]*task.Task), versions: versions},
		Versions: versions,
		Journal:  &JournalStore{},
	}
}

// TaskStore implements task.Store.
type TaskStore struct {
	mu       sync.RWMutex
	byID     map[string]*task.Task
	versions *VersionStore
}

var _ task.Store = (*TaskStore)(nil)

func (s *TaskStore) EnsureTable(context.Context) error { return nil }

func (s *TaskStore) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	if err := s.CreateMany(ctx, []*task.Task{t}); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (s *TaskStore) CreateMany(ctx context.Context, ts []*task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		s.byID[t.ID] = t.Clone()
	}
	return nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *TaskStore) List(ctx context.Context, limit int) ([]*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*task.Task, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *task.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TaskStore) Heads(ctx context.Context, ids []string) (map[string]*string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	heads := make(map[string]*string, len(ids))
	for _, id := range ids {
		if t, ok := s.byID[id]; ok {
			heads[id] = t.Clone().HeadVersionID
		}
	}
	return heads, nil
}

func (s *TaskStore) Update(ctx context.Context, id string, u task.Update) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return 0, nil
	}
	if u.IfUpdatedAt != nil && !t.UpdatedAt.Equal(*u.IfUpdatedAt) {
		return 0, nil
	}
	next := t.Clone()
	next.Apply(u)
	s.byID[id] = next
	return 1, nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
	s.versions.deleteTask(id)
	return nil
}

func (s *TaskStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// VersionStore implements version.Store. It does not check that the owning
// task exists.
type VersionStore struct {
	mu    sync.RWMutex
	byID  map[string]*version.Version
	order []string
}

var _ version.Store = (*VersionStore)(nil)

func (s *VersionStore) EnsureTable(context.Context) error { return nil }

func (s *VersionStore) Insert(ctx context.Context, v *version.Version) (*version.Version, error) {
	if err := s.InsertMany(ctx, []*version.Version{v}); err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

func (s *VersionStore) InsertMany(ctx context.Context, vs []*version.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vs {
		if _, exists := s.byID[v.ID]; !exists {
			s.order = append(s.order, v.ID)
		}
		s.byID[v.ID] = v.Clone()
	}
	return nil
}

func (s *VersionStore) Get(ctx context.Context, taskID, versionID string) (*version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[versionID]
	if !ok || v.TaskID != taskID {
		return nil, version.ErrNotFound
	}
	return v.Clone(), nil
}

func (s *VersionStore) List(ctx context.Context, taskID string) ([]*version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []*version.Version
	for _, id := range s.order {
		if v := s.byID[id]; v.TaskID == taskID {
			out = append(out, v.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *version.Version) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *VersionStore) Links(ctx context.Context, taskIDs []string) ([]version.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(taskIDs))
	for _, id := range taskIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var links []version.Link
	for _, id := range s.order {
		v := s.byID[id]
		if !want[v.TaskID] {
			continue
		}
		links = append(links, version.Link{
			ID:       v.ID,
			TaskID:   v.TaskID,
			ParentID: v.Clone().ParentID,
			Label:    v.Label,
		})
	}
	return links, nil
}

func (s *VersionStore) Update(ctx context.Context, taskID, versionID string, p version.Patch) (*version.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[versionID]
	if !ok || v.TaskID != taskID {
		return nil, version.ErrNotFound
	}
	next := v.Clone()
	next.Apply(p)
	s.byID[versionID] = next
	return next.Clone(), nil
}

func (s *VersionStore) deleteTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		if s.byID[id].TaskID == taskID {
			delete(s.byID, id)
			return true
		}
		return false
	})
}

// JournalStore implements journal.Store.
type JournalStore struct {
	mu      sync.Mutex
	entries []journal.Entry
}

var _ journal.Store = (*JournalStore)(nil)

func (s *JournalStore) EnsureTable(context.Context) error { return nil }

func (s *JournalStore) Append(ctx context.Context, e journal.Entry) (*journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := ""
	if n := len(s.entries); n > 0 {
		prev = s.entries[n-1].Hash
	}
	e.Seq = int64(len(s.entries)) + 1
	if err := journal.Seal(&e, prev); err != nil {
		return nil, err
	}
	s.entries = append(s.entries, e)
	return &e, nil
}

func (s *JournalStore) ByTask(ctx context.Context, taskID string, limit int) ([]journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []journal.Entry
	for _, e := range s.entries {
		if e.TaskID != taskID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *JournalStore) All(ctx context.Context) ([]journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries), nil
}

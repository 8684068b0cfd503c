package task

import (
	"context"
	"errors"
	"maps"
	"time"
)

// ErrNotFound is returned when no task matches the given id.
var ErrNotFound = errors.New("task not found")

// Task is the current-state record of a coding problem.
//
// Meta is the persisted field map: extension keys verbatim plus canonical
// keys. Columns mirrors the canonical keys as typed top-level values. Rows
// written by this package keep the two in agreement; rows imported from
// elsewhere may not, in which case a truthy value in Meta wins.
type Task struct {
	ID                string
	Meta              map[string]any
	Columns           Canonical
	Notes             string
	LastRunSuccessful bool
	HeadVersionID     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Fields returns the task's field map as canonical plus extension halves.
func (t *Task) Fields() Fields {
	raw := t.Columns.Map()
	ext := make(map[string]any)
	for k, v := range t.Meta {
		if IsCanonical(k) {
			if truthy(v) {
				raw[k] = v
			}
			continue
		}
		ext[k] = v
	}
	return Fields{Canonical: NormalizeSnapshot(raw).Canonical, Extension: ext}
}

// SetFields replaces the field map. Meta receives the extension keys and
// every canonical key; Columns receives the canonical half.
func (t *Task) SetFields(f Fields) {
	meta := make(map[string]any, len(f.Extension)+len(CanonicalKeys))
	maps.Copy(meta, f.Extension)
	maps.Copy(meta, f.Canonical.Map())
	t.Meta = meta
	t.Columns = f.Canonical.clone()
}

// snapshotExcluded are canonical keys a version snapshot does not capture.
var snapshotExcluded = map[string]bool{KeyLanguage: true, KeyGroup: true}

// Snapshot captures the task's canonical fields and notes as a version
// payload. Language and group stay with the task.
func (t *Task) Snapshot() Snapshot {
	c := t.Fields().Canonical
	var s Snapshot
	for _, k := range CanonicalKeys {
		if !snapshotExcluded[k] {
			s.Set(k, c.Get(k))
		}
	}
	s.Set(KeyNotes, t.Notes)
	return s
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	out := *t
	out.Meta = cloneMap(t.Meta)
	out.Columns = t.Columns.clone()
	out.HeadVersionID = clonePtr(t.HeadVersionID)
	return &out
}

// Update is a single write against a task row. Nil members are left as they
// are. When IfUpdatedAt is set the write only applies if the stored
// updatedAt still equals it.
type Update struct {
	Fields            *Fields
	Notes             *string
	LastRunSuccessful *bool
	HeadVersionID     *string
	UpdatedAt         time.Time
	IfUpdatedAt       *time.Time
}

// Apply performs u on t in memory. Stores use it to stay consistent with
// the engine's reconstruction of the written row.
func (t *Task) Apply(u Update) {
	if u.Fields != nil {
		t.SetFields(*u.Fields)
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.LastRunSuccessful != nil {
		t.LastRunSuccessful = *u.LastRunSuccessful
	}
	if u.HeadVersionID != nil {
		t.HeadVersionID = clonePtr(u.HeadVersionID)
	}
	t.UpdatedAt = u.UpdatedAt
}

// Store is the contract for task persistence.
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	CreateMany(ctx context.Context, ts []*Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// List returns tasks newest first. A limit of 0 returns every task.
	List(ctx context.Context, limit int) ([]*Task, error)
	// Heads returns the head version id of each listed task that exists.
	Heads(ctx context.Context, ids []string) (map[string]*string, error)
	// Update returns the number of rows written, which is 0 when the id is
	// unknown or the IfUpdatedAt condition failed.
	Update(ctx context.Context, id string, u Update) (int64, error)
	// Delete removes a task and its versions. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	EnsureTable(ctx context.Context) error
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

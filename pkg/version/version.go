// Package version stores the immutable snapshot nodes of a task's edit
// history and derives trees and lineage from them.
package version

import (
	"context"
	"errors"
	"time"

	"taskvault/pkg/task"
)

// ErrNotFound is returned when no version matches both the task and
// version id.
var ErrNotFound = errors.New("version not found")

// Version is one node of a task's history tree.
type Version struct {
	ID        string        `json:"id"`
	TaskID    string        `json:"taskId"`
	ParentID  *string       `json:"parentId"`
	Snapshot  task.Snapshot `json:"data"`
	Label     string        `json:"label"`
	AuthorID  string        `json:"authorId"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Summary is a version without its snapshot.
type Summary struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	ParentID  *string   `json:"parentId"`
	Label     string    `json:"label"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary returns v without its snapshot.
func (v *Version) Summary() Summary {
	return Summary{
		ID:        v.ID,
		TaskID:    v.TaskID,
		ParentID:  v.ParentID,
		Label:     v.Label,
		AuthorID:  v.AuthorID,
		CreatedAt: v.CreatedAt,
	}
}

// Clone returns a copy of v that shares no mutable state.
func (v *Version) Clone() *Version {
	out := *v
	if v.ParentID != nil {
		p := *v.ParentID
		out.ParentID = &p
	}
	out.Snapshot = task.NormalizeSnapshot(v.Snapshot.Map())
	return &out
}

// Patch is an in-place edit of a version. Nil members are left as they are.
// Id, task, parent, author and creation time never change.
type Patch struct {
	Snapshot *task.Snapshot
	Label    *string
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool { return p.Snapshot == nil && p.Label == nil }

// Apply performs p on v.
func (v *Version) Apply(p Patch) {
	if p.Snapshot != nil {
		v.Snapshot = *p.Snapshot
	}
	if p.Label != nil {
		v.Label = *p.Label
	}
}

// Link is the part of a version lineage resolution reads.
type Link struct {
	ID       string
	TaskID   string
	ParentID *string
	Label    string
}

// Store is the contract for version persistence.
type Store interface {
	// Insert persists v. Inserting under an unknown task may fail with
	// task.ErrNotFound where the backend enforces the reference.
	Insert(ctx context.Context, v *Version) (*Version, error)
	InsertMany(ctx context.Context, vs []*Version) error
	// Get looks a version up by its compound key.
	Get(ctx context.Context, taskID, versionID string) (*Version, error)
	// List returns a task's versions oldest first.
	List(ctx context.Context, taskID string) ([]*Version, error)
	// Links returns the parent links and labels of every version of the
	// listed tasks.
	Links(ctx context.Context, taskIDs []string) ([]Link, error)
	// Update patches a version in place. It fails with ErrNotFound when no
	// version matches both ids.
	Update(ctx context.Context, taskID, versionID string, p Patch) (*Version, error)
	EnsureTable(ctx context.Context) error
}

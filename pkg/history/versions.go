package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"taskvault/pkg/journal"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// SaveRequest is the input of AtomicSave.
type SaveRequest struct {
	TaskID   string
	Snapshot *task.Snapshot
	Label    *string
	ParentID *string
	// CompressInto names a version to overwrite in place. It is honored
	// only while that version is the task's head.
	CompressInto *string
}

// SaveResult is the outcome of AtomicSave.
type SaveResult struct {
	Success   bool
	VersionID string
	Task      *task.Task
	Inserted  bool
	// Version describes the created version when one was inserted.
	Version *version.Summary
	Label   *string
}

// AtomicSave records snap as the task's new head. When CompressInto names
// the current head that version is patched in place; otherwise a new
// version is inserted under ParentID. The task is then synced to snap.
//
// If the task does not exist the save fails with task.ErrNotFound, but a
// version inserted before the failure is left in place.
func (e *Engine) AtomicSave(ctx context.Context, req SaveRequest) (_ *SaveResult, err error) {
	ctx, done := e.begin(ctx, "AtomicSave", req.TaskID)
	defer done(&err)

	if req.Snapshot == nil {
		return nil, missing("data")
	}
	snap := req.Snapshot.Normalize()

	var head *string
	switch cur, err := e.tasks.Get(ctx, req.TaskID); {
	case err == nil:
		head = cur.HeadVersionID
	case !errors.Is(err, task.ErrNotFound):
		return nil, err
	}

	res := &SaveResult{Label: req.Label}
	if req.CompressInto != nil && head != nil && *req.CompressInto == *head {
		v, err := e.versions.Update(ctx, req.TaskID, *head, version.Patch{Snapshot: &snap, Label: req.Label})
		if err != nil {
			return nil, err
		}
		res.VersionID = v.ID
	} else {
		label := ""
		if req.Label != nil {
			label = *req.Label
		}
		v, err := e.insert(ctx, req.TaskID, req.ParentID, snap, label)
		if err != nil {
			return nil, err
		}
		sum := v.Summary()
		res.VersionID = v.ID
		res.Inserted = true
		res.Version = &sum
	}

	t, err := e.SyncTaskWithSnapshot(ctx, req.TaskID, snap, &res.VersionID)
	if err != nil {
		return nil, err
	}
	res.Task = t
	res.Success = true
	e.record(ctx, journal.TaskSaved, req.TaskID, res.VersionID, map[string]any{"inserted": res.Inserted})
	return res, nil
}

// insert validates parentID against the task's versions and stores a new
// version authored by the caller.
func (e *Engine) insert(ctx context.Context, taskID string, parentID *string, snap task.Snapshot, label string) (*version.Version, error) {
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	if parentID != nil {
		if _, err := e.versions.Get(ctx, taskID, *parentID); err != nil {
			return nil, fmt.Errorf("parent %s: %w", *parentID, err)
		}
	}
	userID, _ := author(ctx)
	return e.versions.Insert(ctx, &version.Version{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TaskID:    taskID,
		ParentID:  parentID,
		Snapshot:  snap,
		Label:     label,
		AuthorID:  userID,
		CreatedAt: e.now(),
	})
}

// NewVersion is the input of CreateVersion.
type NewVersion struct {
	ParentID *string
	Snapshot *task.Snapshot
	Label    *string
	MakeHead bool
}

// CreateVersion inserts a version. With MakeHead it also becomes the head
// and the task is synced to it.
func (e *Engine) CreateVersion(ctx context.Context, taskID string, nv NewVersion) (_ *version.Version, err error) {
	ctx, done := e.begin(ctx, "CreateVersion", taskID)
	defer done(&err)

	if nv.Snapshot == nil {
		return nil, missing("data")
	}
	label := ""
	if nv.Label != nil {
		label = *nv.Label
	}
	v, err := e.insert(ctx, taskID, nv.ParentID, nv.Snapshot.Normalize(), label)
	if err != nil {
		return nil, err
	}
	e.record(ctx, journal.VersionCreated, taskID, v.ID, map[string]any{"label": v.Label})

	if nv.MakeHead {
		if _, err := e.SyncTaskWithSnapshot(ctx, taskID, v.Snapshot, &v.ID); err != nil {
			return nil, err
		}
		e.record(ctx, journal.HeadSet, taskID, v.ID, nil)
	}
	return v, nil
}

// UpdateVersion patches a version in place. When the patch carries a
// snapshot and the version is the task's head, the task is synced to the
// new snapshot; edits to any other version leave the task untouched.
func (e *Engine) UpdateVersion(ctx context.Context, taskID, versionID string, p version.Patch) (_ *version.Version, err error) {
	ctx, done := e.begin(ctx, "UpdateVersion", taskID)
	defer done(&err)

	if p.Empty() {
		return nil, ErrNoUpdates
	}
	if p.Snapshot != nil {
		norm := p.Snapshot.Normalize()
		p.Snapshot = &norm
	}
	v, err := e.versions.Update(ctx, taskID, versionID, p)
	if err != nil {
		return nil, err
	}
	e.record(ctx, journal.VersionUpdated, taskID, v.ID, map[string]any{"data": p.Snapshot != nil, "label": p.Label != nil})

	if p.Snapshot == nil {
		return v, nil
	}
	cur, err := e.tasks.Get(ctx, taskID)
	if errors.Is(err, task.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	if cur.HeadVersionID != nil && *cur.HeadVersionID == versionID {
		if _, err := e.SyncTaskWithSnapshot(ctx, taskID, v.Snapshot, nil); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// SetHead checks out a version: its stored snapshot becomes the task's
// current state and the task points at it. The version must belong to the
// task.
func (e *Engine) SetHead(ctx context.Context, taskID, versionID string) (_ *task.Task, err error) {
	ctx, done := e.begin(ctx, "SetHead", taskID)
	defer done(&err)

	if versionID == "" {
		return nil, missing("versionId")
	}
	v, err := e.versions.Get(ctx, taskID, versionID)
	if err != nil {
		return nil, err
	}
	t, err := e.SyncTaskWithSnapshot(ctx, taskID, v.Snapshot, &v.ID)
	if err != nil {
		return nil, err
	}
	e.record(ctx, journal.HeadSet, taskID, v.ID, nil)
	return t, nil
}

// History is a task's versions as a tree and as a flat list, oldest first.
type History struct {
	Tree []*version.Node    `json:"tree"`
	Flat []*version.Version `json:"flat"`
}

// ListVersions returns the version history of a task.
func (e *Engine) ListVersions(ctx context.Context, taskID string) (_ *History, err error) {
	ctx, done := e.begin(ctx, "ListVersions", taskID)
	defer done(&err)

	vs, err := e.versions.List(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if vs == nil {
		vs = []*version.Version{}
	}
	return &History{Tree: version.BuildTree(vs), Flat: vs}, nil
}

// GetVersion returns one version of a task.
func (e *Engine) GetVersion(ctx context.Context, taskID, versionID string) (_ *version.Version, err error) {
	ctx, done := e.begin(ctx, "GetVersion", taskID)
	defer done(&err)

	return e.versions.Get(ctx, taskID, versionID)
}

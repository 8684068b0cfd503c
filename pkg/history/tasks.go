package history

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"taskvault/pkg/journal"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// ListTasks returns tasks newest first; limit 0 returns all of them.
func (e *Engine) ListTasks(ctx context.Context, limit int) (_ []*task.Task, err error) {
	ctx, done := e.begin(ctx, "ListTasks", "")
	defer done(&err)

	return e.tasks.List(ctx, limit)
}

// GetTask returns a task by id.
func (e *Engine) GetTask(ctx context.Context, id string) (_ *task.Task, err error) {
	ctx, done := e.begin(ctx, "GetTask", id)
	defer done(&err)

	return e.tasks.Get(ctx, id)
}

// CreateOptions controls CreateTask.
type CreateOptions struct {
	// InitialVersion also records the new task as a root version and
	// makes it the head.
	InitialVersion bool
	// Label of the initial version. It defaults to the caller's email.
	Label *string
}

// CreateTask creates a task from a client payload.
func (e *Engine) CreateTask(ctx context.Context, payload map[string]any, opts CreateOptions) (_ *task.Task, err error) {
	ctx, done := e.begin(ctx, "CreateTask", "")
	defer done(&err)

	t := task.New(payload, e.now())
	created, err := e.tasks.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	e.record(ctx, journal.TaskCreated, created.ID, "", nil)
	if !opts.InitialVersion {
		return created, nil
	}

	_, email := author(ctx)
	label := strings.TrimSpace(email)
	if opts.Label != nil {
		label = *opts.Label
	}
	v, err := e.insert(ctx, created.ID, nil, created.Snapshot(), label)
	if err != nil {
		return nil, err
	}
	e.record(ctx, journal.VersionCreated, created.ID, v.ID, map[string]any{"label": v.Label})
	return e.SyncTaskWithSnapshot(ctx, created.ID, v.Snapshot, &v.ID)
}

// BulkCreate creates one task per payload, each with a root version that is
// already its head. The version label is the caller's email. Inserts are
// chunked; a failure part way leaves the earlier chunks in place.
func (e *Engine) BulkCreate(ctx context.Context, payloads []map[string]any) (_ []*task.Task, err error) {
	ctx, done := e.begin(ctx, "BulkCreate", "")
	defer done(&err)

	userID, email := author(ctx)
	label := strings.TrimSpace(email)
	now := e.now()

	tasks := make([]*task.Task, 0, len(payloads))
	versions := make([]*version.Version, 0, len(payloads))
	for _, p := range payloads {
		t := task.New(p, now)
		v := &version.Version{
			ID:        uuid.Must(uuid.NewV7()).String(),
			TaskID:    t.ID,
			Snapshot:  t.Snapshot(),
			Label:     label,
			AuthorID:  userID,
			CreatedAt: now,
		}
		t.HeadVersionID = &v.ID
		tasks = append(tasks, t)
		versions = append(versions, v)
	}

	for _, chunk := range chunks(tasks, e.chunkSize) {
		if err := e.tasks.CreateMany(ctx, chunk); err != nil {
			return nil, err
		}
	}
	for _, chunk := range chunks(versions, e.chunkSize) {
		if err := e.versions.InsertMany(ctx, chunk); err != nil {
			return nil, err
		}
	}
	for i, t := range tasks {
		e.record(ctx, journal.TaskImported, t.ID, versions[i].ID, nil)
	}
	return tasks, nil
}

// UpdateTask merges a client payload into a task. Reserved keys (notes,
// lastRunSuccessful, headVersionId) update the matching attributes; id and
// timestamps are ignored; every other key merges into the field map. A
// headVersionId must name a version of this task.
func (e *Engine) UpdateTask(ctx context.Context, id string, payload map[string]any) (_ *task.Task, err error) {
	ctx, done := e.begin(ctx, "UpdateTask", id)
	defer done(&err)

	cur, err := e.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	base, overlay := task.SplitPayload(payload)
	if base.HeadVersionID != nil {
		if _, err := e.versions.Get(ctx, id, *base.HeadVersionID); err != nil {
			return nil, err
		}
	}

	fields := cur.Fields().Overlay(overlay)
	t, err := e.write(ctx, cur, task.Update{
		Fields:            &fields,
		Notes:             base.Notes,
		LastRunSuccessful: base.LastRunSuccessful,
		HeadVersionID:     base.HeadVersionID,
		UpdatedAt:         e.now(),
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, journal.TaskUpdated, id, "", nil)
	return t, nil
}

// DeleteTask removes a task and its versions. Deleting an unknown id
// succeeds.
func (e *Engine) DeleteTask(ctx context.Context, id string) (err error) {
	ctx, done := e.begin(ctx, "DeleteTask", id)
	defer done(&err)

	if err := e.tasks.Delete(ctx, id); err != nil {
		return err
	}
	e.record(ctx, journal.TaskDeleted, id, "", nil)
	return nil
}

// CountTasks returns the number of stored tasks.
func (e *Engine) CountTasks(ctx context.Context) (int, error) {
	return e.tasks.Count(ctx)
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// Package history keeps a task's current state in step with its version
// tree. Every operation reads and writes through the task and version
// stores; the engine holds no state of its own between calls.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskvault/internal/identity"
	"taskvault/pkg/journal"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// DefaultChunkSize bounds the ids passed to a single store call by batch
// operations.
const DefaultChunkSize = 200

// Observer receives the outcome of every engine operation.
type Observer interface {
	Observe(op string, err error, elapsed time.Duration)
}

// Options configures an Engine.
type Options struct {
	// Optimistic conditions every task write on the updatedAt that was
	// read before it, turning lost updates into ErrConcurrentModification.
	Optimistic bool
	// ChunkSize caps ids per store call in batch operations.
	ChunkSize int
	// Now is the clock. It defaults to time.Now.
	Now      func() time.Time
	Logger   *slog.Logger
	Journal  journal.Store
	Observer Observer
}

// Engine implements the task and version operations.
type Engine struct {
	tasks    task.Store
	versions version.Store
	journal  journal.Store
	observer Observer
	log      *slog.Logger
	tracer   trace.Tracer

	optimistic bool
	chunkSize  int
	clock      func() time.Time
}

// New creates an Engine over the given stores.
func New(tasks task.Store, versions version.Store, opts Options) *Engine {
	e := &Engine{
		tasks:      tasks,
		versions:   versions,
		journal:    opts.Journal,
		observer:   opts.Observer,
		log:        opts.Logger,
		tracer:     otel.Tracer("taskvault/history"),
		optimistic: opts.Optimistic,
		chunkSize:  opts.ChunkSize,
		clock:      opts.Now,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.chunkSize <= 0 {
		e.chunkSize = DefaultChunkSize
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

// now returns the current time at the precision the stores keep.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// begin opens a span for op. The returned func closes it and reports the
// outcome; call it with a pointer to the operation's error result.
func (e *Engine) begin(ctx context.Context, op, taskID string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "history."+op, trace.WithAttributes(attribute.String("task.id", taskID)))
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if e.observer != nil {
			e.observer.Observe(op, err, time.Since(start))
		}
	}
}

// SyncTaskWithSnapshot merges snap into the task's fields and, when setHead
// is given, points the task at that version. Canonical keys present in snap
// overwrite; all other keys keep their stored value. Notes are written only
// when snap carries them. The returned task is the stored task with the
// same write applied, so it matches what a fresh read would return.
func (e *Engine) SyncTaskWithSnapshot(ctx context.Context, taskID string, snap task.Snapshot, setHead *string) (_ *task.Task, err error) {
	ctx, done := e.begin(ctx, "SyncTaskWithSnapshot", taskID)
	defer done(&err)

	cur, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	norm := snap.Normalize()
	fields := cur.Fields().Merge(norm)
	u := task.Update{
		Fields:        &fields,
		HeadVersionID: setHead,
		UpdatedAt:     e.now(),
	}
	if norm.Has(task.KeyNotes) {
		notes := norm.Notes
		u.Notes = &notes
	}
	return e.write(ctx, cur, u)
}

// write performs u against the task previously read as cur and returns the
// task as written.
func (e *Engine) write(ctx context.Context, cur *task.Task, u task.Update) (*task.Task, error) {
	if e.optimistic {
		at := cur.UpdatedAt
		u.IfUpdatedAt = &at
	}

	n, err := e.tasks.Update(ctx, cur.ID, u)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if e.optimistic {
			got, gerr := e.tasks.Get(ctx, cur.ID)
			switch {
			case gerr == nil && !got.UpdatedAt.Equal(cur.UpdatedAt):
				return nil, fmt.Errorf("task %s: %w", cur.ID, ErrConcurrentModification)
			case gerr != nil && !errors.Is(gerr, task.ErrNotFound):
				return nil, gerr
			}
		}
		e.log.Error("update affected 0 rows; likely a row policy or a deleted id",
			"table", "tasks", "id", cur.ID)
		return nil, fmt.Errorf("task %s: %w", cur.ID, ErrSyncFailed)
	}

	out := cur.Clone()
	out.Apply(u)
	return out, nil
}

// record appends a journal entry. Failures are logged and otherwise ignored.
func (e *Engine) record(ctx context.Context, kind, taskID, versionID string, detail map[string]any) {
	if e.journal == nil {
		return
	}
	actor, _ := identity.FromContext(ctx)
	if _, err := e.journal.Append(ctx, journal.NewEntry(kind, taskID, versionID, actor.UserID, detail)); err != nil {
		e.log.Warn("journal append failed", "kind", kind, "task_id", taskID, "error", err)
		if e.observer != nil {
			e.observer.Observe("journal.Append", err, 0)
		}
	}
}

// author returns the caller's user id and email, empty when anonymous.
func author(ctx context.Context) (string, string) {
	id, _ := identity.FromContext(ctx)
	return id.UserID, id.Email
}

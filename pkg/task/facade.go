package task

import "time"

// View is the external JSON shape of a task.
type View map[string]any

// Present composes the external view of t. It starts from the stored field
// map, fills canonical keys that are unset there from the top-level columns,
// and adds id, notes, lastRunSuccessful and both timestamps. headVersionId
// is included only when the task has a head.
func Present(t *Task) View {
	v := make(View, len(t.Meta)+len(CanonicalKeys)+6)
	for k, val := range t.Meta {
		v[k] = val
	}
	for _, k := range CanonicalKeys {
		if truthy(v[k]) {
			continue
		}
		if col := t.Columns.Get(k); col != nil {
			v[k] = col
		}
	}
	v[KeyID] = t.ID
	v[KeyNotes] = t.Notes
	v[KeyLastRunSuccessful] = t.LastRunSuccessful
	v[KeyCreatedAt] = t.CreatedAt.UTC().Format(time.RFC3339Nano)
	v[KeyUpdatedAt] = t.UpdatedAt.UTC().Format(time.RFC3339Nano)
	if t.HeadVersionID != nil {
		v[KeyHeadVersionID] = *t.HeadVersionID
	}
	return v
}

// PresentAll presents each task in order.
func PresentAll(ts []*Task) []View {
	out := make([]View, 0, len(ts))
	for _, t := range ts {
		out = append(out, Present(t))
	}
	return out
}

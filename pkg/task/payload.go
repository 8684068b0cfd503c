package task

import (
	"time"

	"github.com/google/uuid"
)

// Reserved payload keys. They address task attributes that live outside the
// field map and never merge into it.
const (
	KeyID                = "id"
	KeyLastRunSuccessful = "lastRunSuccessful"
	KeyCreatedAt         = "createdAt"
	KeyUpdatedAt         = "updatedAt"
	KeyHeadVersionID     = "headVersionId"
)

var reservedKeys = map[string]bool{
	KeyNotes:             true,
	KeyLastRunSuccessful: true,
	KeyCreatedAt:         true,
	KeyUpdatedAt:         true,
	KeyHeadVersionID:     true,
	KeyID:                true,
}

// New builds a task from a client payload. Missing text fields default to
// "", topics and difficulty are normalized, and solution falls back to
// reference_solution. Only canonical keys are taken; any head version id in
// the payload is ignored.
func New(payload map[string]any, now time.Time) *Task {
	raw := make(map[string]any, len(CanonicalKeys))
	for _, k := range CanonicalKeys {
		raw[k] = payload[k]
	}
	if !truthy(payload[KeySolution]) {
		raw[KeySolution] = payload["reference_solution"]
	}

	t := &Task{
		ID:                uuid.Must(uuid.NewV7()).String(),
		Notes:             text(payload[KeyNotes]),
		LastRunSuccessful: truthy(payload[KeyLastRunSuccessful]),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	t.SetFields(Fields{Canonical: NormalizeSnapshot(raw).Canonical})
	return t
}

// Base holds the reserved attributes split off an update payload. A nil
// member was not supplied.
type Base struct {
	Notes             *string
	LastRunSuccessful *bool
	HeadVersionID     *string
}

// SplitPayload separates an update payload into its reserved attributes and
// the field-map overlay. id, createdAt and updatedAt are dropped. A null
// headVersionId counts as not supplied.
func SplitPayload(payload map[string]any) (Base, map[string]any) {
	var base Base
	overlay := make(map[string]any, len(payload))
	for k, v := range payload {
		if !reservedKeys[k] {
			overlay[k] = v
			continue
		}
		switch k {
		case KeyNotes:
			s := text(v)
			base.Notes = &s
		case KeyLastRunSuccessful:
			b := truthy(v)
			base.LastRunSuccessful = &b
		case KeyHeadVersionID:
			if v != nil {
				s := text(v)
				base.HeadVersionID = &s
			}
		}
	}
	return base, overlay
}
